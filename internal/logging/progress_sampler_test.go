package logging

import "testing"

func TestNewProgressSamplerDefaultsBucket(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"zero", 0, 5},
		{"negative", -1, 5},
		{"custom", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewProgressSampler(tt.bucketSize).step; got != tt.wantSize {
				t.Fatalf("bucketSize = %v, want %v", got, tt.wantSize)
			}
		})
	}
}

func TestProgressSamplerNilAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "render") {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	steps := []struct {
		percent float64
		stage   string
		want    bool
	}{
		{0, "render", true},
		{3, "render", false},
		{5, "render", true},
		{7, "render", false},
		{10, " render ", true},
		{10, "mux", true},
		{95, "mux", true},
		{100, "mux", true},
		{105, "mux", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.stage); got != step.want {
			t.Fatalf("step %d (%v %q): got %v, want %v", i, step.percent, step.stage, got, step.want)
		}
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(-1, "validate") {
		t.Fatal("first stage event should log")
	}
	if s.ShouldLog(-1, "validate") {
		t.Fatal("repeated unknown percent should not log")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "render")
	s.Reset()
	if !s.ShouldLog(50, "render") {
		t.Fatal("expected log after reset")
	}
}
