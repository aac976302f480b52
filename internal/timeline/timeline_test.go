package timeline

import (
	"errors"
	"math"
	"testing"

	"montage/internal/services"
)

func TestBuildPrefixSums(t *testing.T) {
	tracks := []Track{
		{ID: "a", DurationSeconds: 30},
		{ID: "b", DurationSeconds: 45.5},
		{ID: "c", DurationSeconds: 12.25},
	}
	tl, err := Build(tracks)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	wantOffsets := []float64{0, 30, 75.5}
	for i, want := range wantOffsets {
		if tl.Offsets[i] != want {
			t.Fatalf("offset[%d] = %v, want %v", i, tl.Offsets[i], want)
		}
	}
	if tl.TotalDuration != 87.75 {
		t.Fatalf("total = %v, want 87.75", tl.TotalDuration)
	}
	last := len(tl.Offsets) - 1
	if tl.Offsets[last]+tl.Tracks[last].DurationSeconds != tl.TotalDuration {
		t.Fatal("total must equal last offset plus last duration")
	}
}

func TestBuildPreservesCallerOrder(t *testing.T) {
	tracks := []Track{
		{ID: "late", DurationSeconds: 10, OrderIndex: 5},
		{ID: "early", DurationSeconds: 20, OrderIndex: 0},
	}
	tl, err := Build(tracks)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tl.Tracks[0].ID != "late" || tl.Offsets[1] != 10 {
		t.Fatalf("expected caller order preserved, got %+v", tl)
	}

	tracks[0].ID = "mutated"
	if tl.Tracks[0].ID != "late" {
		t.Fatal("timeline must not alias caller slice")
	}
}

func TestBuildSingleTrack(t *testing.T) {
	tl, err := Build([]Track{{ID: "only", DurationSeconds: 180}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tl.Offsets) != 1 || tl.Offsets[0] != 0 || tl.TotalDuration != 180 {
		t.Fatalf("unexpected timeline %+v", tl)
	}
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		tracks []Track
	}{
		{"empty", nil},
		{"zero duration", []Track{{ID: "a", DurationSeconds: 10}, {ID: "b", DurationSeconds: 0}}},
		{"negative duration", []Track{{ID: "a", DurationSeconds: -1}}},
		{"nan duration", []Track{{ID: "a", DurationSeconds: math.NaN()}}},
		{"infinite duration", []Track{{ID: "a", DurationSeconds: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.tracks)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
