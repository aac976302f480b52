package config

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

const (
	defaultDataDir              = "~/.local/share/montage"
	defaultStagingDir           = "~/.local/share/montage/staging"
	defaultLogDir               = "~/.local/share/montage/logs"
	defaultStorageRoot          = "~/.local/share/montage/assets"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultS3Region             = "us-east-1"
	defaultGeneratorTimeout     = 120
	defaultGeneratorWidth       = 1024
	defaultGeneratorHeight      = 1024
	defaultGeneratorSteps       = 30
	defaultGuidanceScale        = 7.5
	defaultNegativePrompt       = "blurry, low quality, distorted, watermark, text"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultRenderParallelism    = 2
	defaultVideoCodec           = "libx264"
	defaultPreset               = "medium"
	defaultCRF                  = 23
	defaultPixelFormat          = "yuv420p"
	defaultAudioCodec           = "aac"
	defaultAudioBitrate         = "192k"
	defaultResolution           = "1920x1080"
	defaultFPS                  = 30
	defaultTransitionType       = "crossfade"
	defaultTransitionDuration   = 1.0
	defaultDistribution         = "equal"
	defaultWorkers              = 1
	defaultQueuePollInterval    = 5
	defaultPreviewTTL           = 3600
	defaultPreviewSweepInterval = 300
	defaultStaleStagingHours    = 48
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Storage: Storage{
			Backend: StorageLocal,
			Root:    defaultStorageRoot,
			Region:  defaultS3Region,
		},
		Generator: Generator{
			TimeoutSeconds: defaultGeneratorTimeout,
			Width:          defaultGeneratorWidth,
			Height:         defaultGeneratorHeight,
			Steps:          defaultGeneratorSteps,
			GuidanceScale:  defaultGuidanceScale,
			NegativePrompt: defaultNegativePrompt,
		},
		Render: Render{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			Parallelism:   defaultRenderParallelism,
			VideoCodec:    defaultVideoCodec,
			Preset:        defaultPreset,
			CRF:           defaultCRF,
			PixelFormat:   defaultPixelFormat,
			AudioCodec:    defaultAudioCodec,
			AudioBitrate:  defaultAudioBitrate,
		},
		Composition: Composition{
			Resolution:         defaultResolution,
			FPS:                defaultFPS,
			TransitionType:     defaultTransitionType,
			TransitionDuration: defaultTransitionDuration,
			Distribution:       defaultDistribution,
		},
		Workflow: Workflow{
			Workers:              defaultWorkers,
			QueuePollInterval:    defaultQueuePollInterval,
			PreviewTTL:           defaultPreviewTTL,
			PreviewSweepInterval: defaultPreviewSweepInterval,
			StaleStagingHours:    defaultStaleStagingHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
