package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins out progress logging. An update is worth logging when
// the stage changes or the percentage enters a higher bucket.
type ProgressSampler struct {
	step   float64
	stage  string
	bucket int
}

// NewProgressSampler returns a sampler with buckets of step percent. A
// non-positive step means 5%.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step, bucket: -1}
}

// ShouldLog records the update and reports whether to log it. A negative
// percent means progress is unknown and only a stage change counts.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	changed := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage, s.bucket = stage, -1
		changed = true
	}
	if percent < 0 {
		return changed
	}
	if b := int(math.Min(percent, 100) / s.step); b > s.bucket {
		s.bucket = b
		changed = true
	}
	return changed
}

// Reset forgets the last stage and bucket.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.stage, s.bucket = "", -1
	}
}
