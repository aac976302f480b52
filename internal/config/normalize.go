package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeGenerator()
	c.normalizeRender()
	c.normalizeComposition()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := lookupEnv("MONTAGE_API_BIND"); ok {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if value, ok := lookupEnv("MONTAGE_API_TOKEN"); ok {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" || c.Storage.Backend == "filesystem" {
		c.Storage.Backend = StorageLocal
	}
	if c.Storage.Backend == "minio" {
		c.Storage.Backend = StorageS3
		c.Storage.UsePathStyle = true
	}
	if c.Storage.Backend == StorageLocal {
		var err error
		if strings.TrimSpace(c.Storage.Root) == "" {
			c.Storage.Root = defaultStorageRoot
		}
		if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
			return fmt.Errorf("storage.root: %w", err)
		}
	}
	c.Storage.PublicURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicURL), "/")
	if c.Storage.Backend == StorageLocal && c.Storage.PublicURL == "" {
		c.Storage.PublicURL = "http://" + c.Paths.APIBind + "/files"
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultS3Region
	}
	if value, ok := lookupEnv("MONTAGE_S3_ACCESS_KEY"); ok {
		c.Storage.AccessKey = value
	}
	if value, ok := lookupEnv("MONTAGE_S3_SECRET_KEY"); ok {
		c.Storage.SecretKey = value
	}
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	return nil
}

func (c *Config) normalizeGenerator() {
	if value, ok := lookupEnv("MONTAGE_SD_URL"); ok {
		c.Generator.StableDiffusionURL = value
	}
	c.Generator.StableDiffusionURL = strings.TrimRight(strings.TrimSpace(c.Generator.StableDiffusionURL), "/")
	if c.Generator.TimeoutSeconds <= 0 {
		c.Generator.TimeoutSeconds = defaultGeneratorTimeout
	}
	if c.Generator.Width <= 0 {
		c.Generator.Width = defaultGeneratorWidth
	}
	if c.Generator.Height <= 0 {
		c.Generator.Height = defaultGeneratorHeight
	}
	if c.Generator.Steps <= 0 {
		c.Generator.Steps = defaultGeneratorSteps
	}
	if c.Generator.GuidanceScale <= 0 {
		c.Generator.GuidanceScale = defaultGuidanceScale
	}
	c.Generator.NegativePrompt = strings.TrimSpace(c.Generator.NegativePrompt)
}

func (c *Config) normalizeRender() {
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = defaultFFmpegBinary
	}
	c.Render.FFprobeBinary = strings.TrimSpace(c.Render.FFprobeBinary)
	if c.Render.FFprobeBinary == "" {
		c.Render.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Render.Parallelism <= 0 {
		c.Render.Parallelism = 1
	}
	c.Render.VideoCodec = strings.TrimSpace(c.Render.VideoCodec)
	if c.Render.VideoCodec == "" {
		c.Render.VideoCodec = defaultVideoCodec
	}
	c.Render.Preset = strings.TrimSpace(c.Render.Preset)
	if c.Render.Preset == "" {
		c.Render.Preset = defaultPreset
	}
	c.Render.PixelFormat = strings.TrimSpace(c.Render.PixelFormat)
	if c.Render.PixelFormat == "" {
		c.Render.PixelFormat = defaultPixelFormat
	}
	c.Render.AudioCodec = strings.TrimSpace(c.Render.AudioCodec)
	if c.Render.AudioCodec == "" {
		c.Render.AudioCodec = defaultAudioCodec
	}
	c.Render.AudioBitrate = strings.TrimSpace(c.Render.AudioBitrate)
	if c.Render.AudioBitrate == "" {
		c.Render.AudioBitrate = defaultAudioBitrate
	}
}

func (c *Config) normalizeComposition() {
	c.Composition.Resolution = strings.ToLower(strings.TrimSpace(c.Composition.Resolution))
	if c.Composition.Resolution == "" {
		c.Composition.Resolution = defaultResolution
	}
	if c.Composition.FPS == 0 {
		c.Composition.FPS = defaultFPS
	}
	c.Composition.TransitionType = strings.ToLower(strings.TrimSpace(c.Composition.TransitionType))
	if c.Composition.TransitionType == "" {
		c.Composition.TransitionType = defaultTransitionType
	}
	c.Composition.Distribution = strings.ToLower(strings.TrimSpace(c.Composition.Distribution))
	if c.Composition.Distribution == "" {
		c.Composition.Distribution = defaultDistribution
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.PreviewTTL < 0 {
		c.Workflow.PreviewTTL = 0
	}
	if c.Workflow.StaleStagingHours < 0 {
		c.Workflow.StaleStagingHours = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
