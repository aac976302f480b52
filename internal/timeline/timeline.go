// Package timeline stitches ordered audio tracks into a single continuous
// timeline.
package timeline

import (
	"fmt"
	"math"

	"montage/internal/services"
)

// Track is one audio input in caller order.
type Track struct {
	ID              string  `json:"id"`
	Filename        string  `json:"filename"`
	DurationSeconds float64 `json:"duration_seconds"`
	OrderIndex      int     `json:"order_index"`
}

// Timeline lays tracks end to end. Offsets[i] is the start of Tracks[i].
type Timeline struct {
	Tracks        []Track   `json:"tracks"`
	Offsets       []float64 `json:"offsets"`
	TotalDuration float64   `json:"total_duration"`
}

// Build computes start offsets and the total duration for tracks in the
// order given. It does not reorder by OrderIndex.
func Build(tracks []Track) (Timeline, error) {
	if len(tracks) == 0 {
		return Timeline{}, services.Wrap(services.ErrValidation, "timeline", "build", "at least one audio track is required", nil)
	}

	out := Timeline{
		Tracks:  make([]Track, len(tracks)),
		Offsets: make([]float64, len(tracks)),
	}
	copy(out.Tracks, tracks)

	var cursor float64
	for i, track := range tracks {
		d := track.DurationSeconds
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return Timeline{}, services.Wrap(
				services.ErrValidation,
				"timeline",
				"build",
				fmt.Sprintf("track %d (%s) has invalid duration %v", i, trackLabel(track), d),
				nil,
			)
		}
		out.Offsets[i] = cursor
		cursor += d
	}
	out.TotalDuration = cursor
	return out, nil
}

func trackLabel(track Track) string {
	if track.Filename != "" {
		return track.Filename
	}
	if track.ID != "" {
		return track.ID
	}
	return "unnamed"
}
