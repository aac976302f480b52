package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"montage/internal/config"
)

// ConfigOption adjusts the config NewConfig builds.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns the default config rooted in a fresh temp directory: data,
// staging, logs and a local asset store each get their own subdirectory, and
// the API binds to an ephemeral loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.Root = filepath.Join(base, "assets")
	cfg.Workflow.QueuePollInterval = 1
	cfg.Render.Parallelism = 2

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithStubbedBinaries installs shell stubs for ffmpeg and ffprobe that print a
// version banner, and points the render config at them.
func WithStubbedBinaries() ConfigOption {
	return func(t testing.TB, base string, cfg *config.Config) {
		t.Helper()
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		stub := func(name string) string {
			path := filepath.Join(bin, name)
			script := "#!/bin/sh\necho '" + name + " version stub'\n"
			if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
			return path
		}
		cfg.Render.FFmpegBinary = stub("ffmpeg")
		cfg.Render.FFprobeBinary = stub("ffprobe")
	}
}
