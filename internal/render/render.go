// Package render turns a distribution plan into video files by driving
// ffmpeg: one clip per image slice, a join pass with the configured
// transition, and a final mux with the concatenated soundtrack.
package render

import (
	"context"
	"fmt"
	"math"
	"strings"

	"montage/internal/config"
)

// Transition names.
const (
	TransitionNone      = "none"
	TransitionFade      = "fade"
	TransitionCrossfade = "crossfade"
)

// kenBurnsZoom is the maximum zoom factor applied over one slice.
const kenBurnsZoom = 1.2

// VideoSpec is the visual layout shared by every clip of a composition.
type VideoSpec struct {
	Width              int
	Height             int
	FPS                int
	Transition         string
	TransitionDuration float64
	KenBurns           bool
}

// Encoding carries codec settings from the render config section.
type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
}

// EncodingFromConfig extracts encoder settings.
func EncodingFromConfig(cfg config.Render) Encoding {
	return Encoding{
		VideoCodec:   cfg.VideoCodec,
		Preset:       cfg.Preset,
		CRF:          cfg.CRF,
		PixelFormat:  cfg.PixelFormat,
		AudioCodec:   cfg.AudioCodec,
		AudioBitrate: cfg.AudioBitrate,
	}
}

// Slice is one image shown at position Index of the composition.
type Slice struct {
	Index     int
	ImagePath string
	Output    string
	Timing    ClipTiming
}

// ClipTiming is the encoded length of a clip and its fades. Length exceeds
// the slice's display time by the crossfade overlap for every clip but the
// last, so that joining clips preserves the timeline length.
type ClipTiming struct {
	Length  float64
	FadeIn  float64
	FadeOut float64
	// Overlap is how much of the clip's tail crossfades into the next one.
	Overlap float64
}

// Renderer is the codec engine used by the pipeline.
type Renderer interface {
	// RenderSlice encodes one still image into a clip.
	RenderSlice(ctx context.Context, slice Slice, spec VideoSpec) error
	// Join combines rendered clips, in order, into one silent video.
	Join(ctx context.Context, clips []string, timings []ClipTiming, output string, spec VideoSpec) error
	// Mux concatenates the audio files in order and muxes them with video.
	Mux(ctx context.Context, video string, audio []string, output string) error
}

// ClampTransition limits the transition so that no slice is shorter than
// two transitions. Returns 0 when transitions are disabled.
func ClampTransition(spec VideoSpec, durations []float64) float64 {
	if spec.Transition == TransitionNone || spec.TransitionDuration <= 0 || len(durations) < 2 {
		return 0
	}
	shortest := math.Inf(1)
	for _, d := range durations {
		shortest = min(shortest, d)
	}
	return math.Max(0, math.Min(spec.TransitionDuration, shortest/2))
}

// Layout computes per-clip timings for slice durations under spec.
func Layout(spec VideoSpec, durations []float64) []ClipTiming {
	transition := ClampTransition(spec, durations)
	timings := make([]ClipTiming, len(durations))
	last := len(durations) - 1
	for i, d := range durations {
		timing := ClipTiming{Length: d}
		switch spec.Transition {
		case TransitionCrossfade:
			if i < last {
				timing.Length += transition
				timing.Overlap = transition
			}
		case TransitionFade:
			if i > 0 {
				timing.FadeIn = transition
			}
			if i < last {
				timing.FadeOut = transition
			}
		}
		timings[i] = timing
	}
	return timings
}

// Normalize lowercases the transition name and rejects unknown values.
func (s VideoSpec) Normalize() (VideoSpec, error) {
	s.Transition = strings.ToLower(strings.TrimSpace(s.Transition))
	if s.Transition == "" {
		s.Transition = TransitionNone
	}
	switch s.Transition {
	case TransitionNone, TransitionFade, TransitionCrossfade:
	default:
		return s, fmt.Errorf("unsupported transition %q", s.Transition)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Width%2 != 0 || s.Height%2 != 0 {
		return s, fmt.Errorf("invalid resolution %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return s, fmt.Errorf("invalid fps %d", s.FPS)
	}
	return s, nil
}
