package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"montage/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "montage", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Fatalf("expected local storage by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Root != filepath.Join(tempHome, ".local", "share", "montage", "assets") {
		t.Fatalf("unexpected storage root: %q", cfg.Storage.Root)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Composition.Resolution != "1920x1080" || cfg.Composition.FPS != 30 {
		t.Fatalf("unexpected composition defaults: %+v", cfg.Composition)
	}
	if cfg.Composition.TransitionDuration != 1.0 {
		t.Fatalf("unexpected transition duration: %v", cfg.Composition.TransitionDuration)
	}
	if cfg.PreviewTTL().Hours() != 1 {
		t.Fatalf("expected one hour preview ttl, got %v", cfg.PreviewTTL())
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, ".local", "share", "montage", "montage.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestDefaultConfigPathHonoursXDG(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	got, err := config.DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if want := filepath.Join(base, "montage", "config.toml"); got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestExpandPathTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	for in, want := range map[string]string{
		"":            "",
		"~":           home,
		"~/music/mix": filepath.Join(home, "music", "mix"),
	} {
		got, err := config.ExpandPath(in)
		if err != nil {
			t.Fatalf("ExpandPath(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Chdir(t.TempDir())
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "montage.toml")

	type payload struct {
		Storage struct {
			Backend string `toml:"backend"`
			Bucket  string `toml:"bucket"`
		} `toml:"storage"`
		Composition struct {
			FPS            int    `toml:"fps"`
			TransitionType string `toml:"transition_type"`
		} `toml:"composition"`
		Workflow struct {
			Workers int `toml:"workers"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Storage.Backend = "minio"
	custom.Storage.Bucket = "videos"
	custom.Composition.FPS = 24
	custom.Composition.TransitionType = "Fade"
	custom.Workflow.Workers = 3
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Storage.Backend != config.StorageS3 || !cfg.Storage.UsePathStyle {
		t.Fatalf("expected minio to map to path-style s3, got %+v", cfg.Storage)
	}
	if cfg.Composition.FPS != 24 {
		t.Fatalf("expected fps 24, got %d", cfg.Composition.FPS)
	}
	if cfg.Composition.TransitionType != "fade" {
		t.Fatalf("expected lowercased transition type, got %q", cfg.Composition.TransitionType)
	}
	if cfg.Workflow.Workers != 3 {
		t.Fatalf("expected 3 workers, got %d", cfg.Workflow.Workers)
	}
}

func TestEnvVarOverridesConfigFileForSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath := filepath.Join(t.TempDir(), "montage.toml")
	contents := `
[storage]
backend = "s3"
bucket = "montage"
access_key = "file-access"
secret_key = "file-secret"

[generator]
stable_diffusion_url = "http://file:7860/"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MONTAGE_S3_ACCESS_KEY", "env-access")
	t.Setenv("MONTAGE_S3_SECRET_KEY", "env-secret")
	t.Setenv("MONTAGE_SD_URL", "http://env:7860/")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.AccessKey != "env-access" || cfg.Storage.SecretKey != "env-secret" {
		t.Errorf("expected S3 credentials from env, got %q/%q", cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	}
	if cfg.Generator.StableDiffusionURL != "http://env:7860" {
		t.Errorf("expected SD url from env without trailing slash, got %q", cfg.Generator.StableDiffusionURL)
	}
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	configPath := filepath.Join(dir, "montage.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MONTAGE_API_BIND=127.0.0.1:9999\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("MONTAGE_API_BIND", "")
	os.Unsetenv("MONTAGE_API_BIND")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9999" {
		t.Fatalf("expected api bind from .env, got %q", cfg.Paths.APIBind)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[composition]") {
		t.Fatalf("sample config missing composition section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StagingDir, "montage") {
		t.Fatalf("expected staging dir to contain montage, got %q", cfg.Paths.StagingDir)
	}
	if cfg.Composition.Distribution != "equal" {
		t.Fatalf("unexpected sample distribution: %q", cfg.Composition.Distribution)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"fps too high", func(c *config.Config) { c.Composition.FPS = 61 }},
		{"fps zero", func(c *config.Config) { c.Composition.FPS = 0 }},
		{"transition too long", func(c *config.Config) { c.Composition.TransitionDuration = 6 }},
		{"unknown transition", func(c *config.Config) { c.Composition.TransitionType = "wipe" }},
		{"unknown distribution", func(c *config.Config) { c.Composition.Distribution = "random" }},
		{"odd resolution", func(c *config.Config) { c.Composition.Resolution = "1921x1080" }},
		{"bad resolution", func(c *config.Config) { c.Composition.Resolution = "hd" }},
		{"s3 without bucket", func(c *config.Config) { c.Storage.Backend = config.StorageS3 }},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "ftp" }},
		{"zero workers", func(c *config.Config) { c.Workflow.Workers = 0 }},
		{"crf out of range", func(c *config.Config) { c.Render.CRF = 60 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := config.ParseResolution(" 1280X720 ")
	if err != nil {
		t.Fatalf("ParseResolution: %v", err)
	}
	if w != 1280 || h != 720 {
		t.Fatalf("got %dx%d", w, h)
	}
}
