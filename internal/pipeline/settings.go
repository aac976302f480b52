package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"montage/internal/config"
	"montage/internal/distribution"
	"montage/internal/render"
	"montage/internal/services"
)

// Settings are the per-composition video options.
type Settings struct {
	Resolution         string  `json:"resolution" yaml:"resolution"`
	FPS                int     `json:"fps" yaml:"fps"`
	TransitionType     string  `json:"transition_type" yaml:"transition_type"`
	TransitionDuration float64 `json:"transition_duration" yaml:"transition_duration"`
	KenBurns           bool    `json:"ken_burns" yaml:"ken_burns"`
	Distribution       string  `json:"distribution" yaml:"distribution"`
}

// DefaultSettings returns the configured composition defaults.
func DefaultSettings(cfg config.Composition) Settings {
	return Settings{
		Resolution:         cfg.Resolution,
		FPS:                cfg.FPS,
		TransitionType:     cfg.TransitionType,
		TransitionDuration: cfg.TransitionDuration,
		KenBurns:           cfg.KenBurns,
		Distribution:       cfg.Distribution,
	}
}

// WithDefaults fills empty string and zero fps fields from defaults.
// TransitionDuration and KenBurns are taken as given since zero is a
// meaningful value for both.
func (s Settings) WithDefaults(defaults Settings) Settings {
	if strings.TrimSpace(s.Resolution) == "" {
		s.Resolution = defaults.Resolution
	}
	if s.FPS == 0 {
		s.FPS = defaults.FPS
	}
	if strings.TrimSpace(s.TransitionType) == "" {
		s.TransitionType = defaults.TransitionType
	}
	if strings.TrimSpace(s.Distribution) == "" {
		s.Distribution = defaults.Distribution
	}
	return s
}

// Validate checks the settings and converts them into render and planner
// inputs.
func (s Settings) Validate() (render.VideoSpec, distribution.Strategy, error) {
	width, height, err := config.ParseResolution(s.Resolution)
	if err != nil {
		return render.VideoSpec{}, "", invalid(err.Error())
	}
	if s.FPS < 1 || s.FPS > 60 {
		return render.VideoSpec{}, "", invalid(fmt.Sprintf("fps must be between 1 and 60, got %d", s.FPS))
	}
	d := s.TransitionDuration
	if math.IsNaN(d) || d < 0 || d > 5 {
		return render.VideoSpec{}, "", invalid(fmt.Sprintf("transition_duration must be between 0 and 5 seconds, got %v", d))
	}
	spec, err := render.VideoSpec{
		Width:              width,
		Height:             height,
		FPS:                s.FPS,
		Transition:         s.TransitionType,
		TransitionDuration: d,
		KenBurns:           s.KenBurns,
	}.Normalize()
	if err != nil {
		return render.VideoSpec{}, "", invalid(err.Error())
	}
	strategy, err := distribution.ParseStrategy(s.Distribution)
	if err != nil {
		return render.VideoSpec{}, "", err
	}
	return spec, strategy, nil
}

// EncodeSettings serializes settings for storage on the job record.
func EncodeSettings(s Settings) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	return string(data), nil
}

// DecodeSettings parses settings stored on a job record.
func DecodeSettings(raw string) (Settings, error) {
	var s Settings
	if strings.TrimSpace(raw) == "" {
		return s, invalid("job has no settings")
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, invalid(fmt.Sprintf("decode settings: %v", err))
	}
	return s, nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "pipeline", "settings", message, nil)
}
