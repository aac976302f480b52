// Package distribution assigns time slices of an audio timeline to images.
package distribution

import (
	"fmt"
	"math"
	"strings"

	"montage/internal/services"
)

// Epsilon bounds the floating point slack tolerated when checking that a
// plan covers the timeline without gaps or overlaps.
const Epsilon = 1e-3

// Strategy selects how slice durations are weighted.
type Strategy string

const (
	// Equal gives every image the same share of the timeline.
	Equal Strategy = "equal"
	// Proportional weights image i by i+1 so later images hold longer.
	Proportional Strategy = "proportional"
)

// ParseStrategy normalizes a strategy name. An empty value selects Equal.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", Equal:
		return Equal, nil
	case Proportional:
		return Proportional, nil
	}
	return "", services.Wrap(services.ErrValidation, "distribution", "parse strategy",
		fmt.Sprintf("unknown distribution strategy %q", value), nil)
}

// Slice is one image's interval on the timeline.
type Slice struct {
	ImageID  string  `json:"image_id"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the slice end time.
func (s Slice) End() float64 {
	return s.Start + s.Duration
}

// Plan is an ordered, gap-free partition of [0, total).
type Plan struct {
	Strategy Strategy `json:"strategy"`
	Total    float64  `json:"total"`
	Slices   []Slice  `json:"slices"`
}

// Make partitions total seconds across imageIDs in order. Repeated ids are
// kept as separate slices.
func Make(total float64, imageIDs []string, strategy Strategy) (Plan, error) {
	if len(imageIDs) == 0 {
		return Plan{}, validationError("at least one approved image is required")
	}
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return Plan{}, validationError(fmt.Sprintf("total duration must be positive, got %v", total))
	}

	var weights []float64
	switch strategy {
	case Equal:
		weights = equalWeights(len(imageIDs))
	case Proportional:
		weights = linearWeights(len(imageIDs))
	default:
		return Plan{}, validationError(fmt.Sprintf("unknown distribution strategy %q", strategy))
	}

	var weightSum float64
	for _, w := range weights {
		weightSum += w
	}

	plan := Plan{Strategy: strategy, Total: total, Slices: make([]Slice, len(imageIDs))}
	var cursor float64
	for i, id := range imageIDs {
		duration := total * weights[i] / weightSum
		if i == len(imageIDs)-1 {
			// Last slice absorbs accumulated rounding.
			duration = total - cursor
		}
		plan.Slices[i] = Slice{ImageID: id, Start: cursor, Duration: duration}
		cursor += duration
	}
	return plan, nil
}

// Validate checks that the plan is contiguous, positive, and covers total
// within Epsilon.
func (p Plan) Validate(total float64) error {
	if len(p.Slices) == 0 {
		return validationError("plan has no slices")
	}
	if math.Abs(p.Slices[0].Start) > Epsilon {
		return validationError(fmt.Sprintf("plan starts at %v, want 0", p.Slices[0].Start))
	}
	for i, slice := range p.Slices {
		if slice.Duration <= 0 {
			return validationError(fmt.Sprintf("slice %d has non-positive duration %v", i, slice.Duration))
		}
		if i > 0 {
			prevEnd := p.Slices[i-1].End()
			if math.Abs(slice.Start-prevEnd) > Epsilon {
				return validationError(fmt.Sprintf("slice %d starts at %v, previous ends at %v", i, slice.Start, prevEnd))
			}
		}
	}
	end := p.Slices[len(p.Slices)-1].End()
	if math.Abs(end-total) > Epsilon {
		return validationError(fmt.Sprintf("plan ends at %v, timeline ends at %v", end, total))
	}
	return nil
}

// MinDuration returns the shortest slice duration.
func (p Plan) MinDuration() float64 {
	if len(p.Slices) == 0 {
		return 0
	}
	shortest := p.Slices[0].Duration
	for _, s := range p.Slices[1:] {
		shortest = math.Min(shortest, s.Duration)
	}
	return shortest
}

// Resolve checks that every requested id is approved and returns the
// requested ids in order. Unknown or unapproved ids are validation errors.
func Resolve(requested []string, approved map[string]bool) ([]string, error) {
	if len(requested) == 0 {
		return nil, validationError("at least one approved image is required")
	}
	var missing []string
	for _, id := range requested {
		if !approved[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, validationError(fmt.Sprintf("images not approved: %s", strings.Join(missing, ", ")))
	}
	out := make([]string, len(requested))
	copy(out, requested)
	return out, nil
}

func equalWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	return weights
}

func linearWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = float64(i + 1)
	}
	return weights
}

func validationError(message string) error {
	return services.Wrap(services.ErrValidation, "distribution", "plan", message, nil)
}
