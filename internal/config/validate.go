package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateComposition(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return errors.New("storage.root must be set when storage.backend is local")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is s3")
		}
		if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
			return errors.New("storage.access_key and storage.secret_key must be set together (or MONTAGE_S3_ACCESS_KEY / MONTAGE_S3_SECRET_KEY)")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected local or s3)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.CRF < 0 || c.Render.CRF > 51 {
		return errors.New("render.crf must be between 0 and 51")
	}
	if c.Render.Parallelism <= 0 {
		return errors.New("render.parallelism must be positive")
	}
	return nil
}

func (c *Config) validateComposition() error {
	if _, _, err := ParseResolution(c.Composition.Resolution); err != nil {
		return fmt.Errorf("composition.resolution: %w", err)
	}
	if c.Composition.FPS < 1 || c.Composition.FPS > 60 {
		return errors.New("composition.fps must be between 1 and 60")
	}
	switch c.Composition.TransitionType {
	case "none", "fade", "crossfade":
	default:
		return fmt.Errorf("composition.transition_type: unsupported value %q", c.Composition.TransitionType)
	}
	if c.Composition.TransitionDuration < 0 || c.Composition.TransitionDuration > 5 {
		return errors.New("composition.transition_duration must be between 0 and 5 seconds")
	}
	switch c.Composition.Distribution {
	case "equal", "proportional":
	default:
		return fmt.Errorf("composition.distribution: unsupported value %q", c.Composition.Distribution)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":                c.Workflow.Workers,
		"workflow.queue_poll_interval":    c.Workflow.QueuePollInterval,
		"workflow.preview_sweep_interval": c.Workflow.PreviewSweepInterval,
		"generator.timeout_seconds":       c.Generator.TimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

// ParseResolution splits a "WIDTHxHEIGHT" string into even, positive dimensions.
func ParseResolution(value string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(value)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q (expected WIDTHxHEIGHT)", value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q", parts[0])
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q", parts[1])
	}
	if width <= 0 || height <= 0 || width > 7680 || height > 4320 {
		return 0, 0, fmt.Errorf("resolution %q out of range", value)
	}
	if width%2 != 0 || height%2 != 0 {
		return 0, 0, fmt.Errorf("resolution %q must use even dimensions", value)
	}
	return width, height, nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
