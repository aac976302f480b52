package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Storage selects and configures the asset store backend.
type Storage struct {
	Backend   string `toml:"backend"` // local or s3
	Root      string `toml:"root"`
	PublicURL string `toml:"public_url"`

	Endpoint     string `toml:"endpoint"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// Generator contains image generator backend settings.
type Generator struct {
	StableDiffusionURL string  `toml:"stable_diffusion_url"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	Width              int     `toml:"width"`
	Height             int     `toml:"height"`
	Steps              int     `toml:"steps"`
	GuidanceScale      float64 `toml:"guidance_scale"`
	NegativePrompt     string  `toml:"negative_prompt"`
}

// Render contains encoder settings passed to ffmpeg.
type Render struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	Parallelism   int    `toml:"parallelism"`
	VideoCodec    string `toml:"video_codec"`
	Preset        string `toml:"preset"`
	CRF           int    `toml:"crf"`
	PixelFormat   string `toml:"pixel_format"`
	AudioCodec    string `toml:"audio_codec"`
	AudioBitrate  string `toml:"audio_bitrate"`
}

// Composition holds the default video settings applied when a request
// leaves a field unset.
type Composition struct {
	Resolution         string  `toml:"resolution"`
	FPS                int     `toml:"fps"`
	TransitionType     string  `toml:"transition_type"`
	TransitionDuration float64 `toml:"transition_duration"`
	KenBurns           bool    `toml:"ken_burns"`
	Distribution       string  `toml:"distribution"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	Workers              int `toml:"workers"`
	QueuePollInterval    int `toml:"queue_poll_interval"`
	PreviewTTL           int `toml:"preview_ttl"`
	PreviewSweepInterval int `toml:"preview_sweep_interval"`
	StaleStagingHours    int `toml:"stale_staging_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for montage.
//
// Configuration sections by subsystem:
//   - Paths: database, staging and log directories plus the API bind address
//   - Storage: asset store backend (local filesystem or S3/MinIO)
//   - Generator: Stable Diffusion endpoint and default generation parameters
//   - Render: ffmpeg binaries and encoder settings
//   - Composition: default video settings for new jobs
//   - Workflow: worker count, polling and sweep intervals
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Storage     Storage     `toml:"storage"`
	Generator   Generator   `toml:"generator"`
	Render      Render      `toml:"render"`
	Composition Composition `toml:"composition"`
	Workflow    Workflow    `toml:"workflow"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/montage/config.toml, falling
// back to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultConfigPath() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return expandPath(filepath.Join(base, "montage", "config.toml"))
	}
	return expandPath("~/.config/montage/config.toml")
}

// Load reads the configuration at path, or the first default location that
// exists when path is empty. It reports the resolved path and whether a file
// was actually read; a missing file yields the defaults. Env files are applied
// before normalization so MONTAGE_* fallbacks see them.
func Load(path string) (*Config, string, bool, error) {
	resolved, found, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if found {
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config %s: %w", resolved, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := loadEnvFiles(resolved); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, found, nil
}

// loadEnvFiles applies .env from the working directory and from the config
// file's directory. Variables already set in the environment are kept.
func loadEnvFiles(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	applied := map[string]bool{}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil || applied[abs] || !isFile(abs) {
			continue
		}
		applied[abs] = true
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

// resolveConfigPath picks the file Load should read. An explicit path is used
// as given even when it does not exist yet. Otherwise the user config wins over
// ./montage.toml, and the user config path is returned when neither exists.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	localPath, err := filepath.Abs("montage.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, localPath} {
		if isFile(candidate) {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.Root)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "montage.db")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "montaged.lock")
}

// FFmpegBinary returns the ffmpeg executable used for rendering.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Render.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable used for duration probing and output verification.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Render.FFprobeBinary); bin != "" {
		return bin
	}
	return defaultFFprobeBinary
}

// GeneratorTimeout returns the per-request generator timeout.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// PollInterval returns how often idle workers re-check the job table.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

// PreviewTTL returns how long an unresolved preview survives before it is expired.
func (c *Config) PreviewTTL() time.Duration {
	return time.Duration(c.Workflow.PreviewTTL) * time.Second
}

// PreviewSweepInterval returns the period of the preview expiry sweep.
func (c *Config) PreviewSweepInterval() time.Duration {
	return time.Duration(c.Workflow.PreviewSweepInterval) * time.Second
}

// StaleStagingAge returns the age after which orphaned job work directories are removed.
func (c *Config) StaleStagingAge() time.Duration {
	return time.Duration(c.Workflow.StaleStagingHours) * time.Hour
}

// expandPath resolves a leading "~" to the home directory and returns a
// cleaned absolute path. Empty stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, value[1:])
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath applies the same "~" and absolute-path rules Load uses.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

// CreateSample writes the commented sample configuration to path, creating
// parent directories as needed.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
