package distribution

import (
	"errors"
	"math"
	"testing"

	"montage/internal/services"
)

func TestMakeEqualPartition(t *testing.T) {
	plan, err := Make(10, []string{"a", "b", "c"}, Equal)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if len(plan.Slices) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(plan.Slices))
	}
	for i, slice := range plan.Slices[:2] {
		if math.Abs(slice.Duration-10.0/3) > 1e-9 {
			t.Fatalf("slice %d duration %v", i, slice.Duration)
		}
	}
	if err := plan.Validate(10); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if end := plan.Slices[2].End(); end != 10 {
		t.Fatalf("last slice must end exactly at total, got %v", end)
	}
}

func TestMakeProportionalWeights(t *testing.T) {
	plan, err := Make(60, []string{"a", "b", "c"}, Proportional)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	want := []float64{10, 20, 30}
	for i, w := range want {
		if math.Abs(plan.Slices[i].Duration-w) > 1e-9 {
			t.Fatalf("slice %d duration %v, want %v", i, plan.Slices[i].Duration, w)
		}
	}
	if err := plan.Validate(60); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMakeCoversTotalForManySlices(t *testing.T) {
	ids := make([]string, 97)
	for i := range ids {
		ids[i] = "img"
	}
	for _, strategy := range []Strategy{Equal, Proportional} {
		for _, total := range []float64{0.5, 7.3, 181.77, 3600.001} {
			plan, err := Make(total, ids, strategy)
			if err != nil {
				t.Fatalf("Make(%v, %s): %v", total, strategy, err)
			}
			if err := plan.Validate(total); err != nil {
				t.Fatalf("Validate(%v, %s): %v", total, strategy, err)
			}
		}
	}
}

func TestMakeSingleImageSpansTimeline(t *testing.T) {
	plan, err := Make(42, []string{"only"}, Proportional)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if len(plan.Slices) != 1 || plan.Slices[0].Start != 0 || plan.Slices[0].Duration != 42 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestMakeKeepsRepeatedIDs(t *testing.T) {
	plan, err := Make(9, []string{"a", "a", "b"}, Equal)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if plan.Slices[0].ImageID != "a" || plan.Slices[1].ImageID != "a" || plan.Slices[2].ImageID != "b" {
		t.Fatalf("unexpected slice ids %+v", plan.Slices)
	}
}

func TestMakeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		total    float64
		ids      []string
		strategy Strategy
	}{
		{"no images", 10, nil, Equal},
		{"zero total", 0, []string{"a"}, Equal},
		{"negative total", -5, []string{"a"}, Equal},
		{"nan total", math.NaN(), []string{"a"}, Equal},
		{"unknown strategy", 10, []string{"a"}, Strategy("random")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Make(tt.total, tt.ids, tt.strategy); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateDetectsGapsAndOverruns(t *testing.T) {
	gap := Plan{Slices: []Slice{{ImageID: "a", Start: 0, Duration: 4}, {ImageID: "b", Start: 5, Duration: 5}}}
	if err := gap.Validate(10); err == nil {
		t.Fatal("expected gap to fail validation")
	}
	short := Plan{Slices: []Slice{{ImageID: "a", Start: 0, Duration: 9}}}
	if err := short.Validate(10); err == nil {
		t.Fatal("expected short plan to fail validation")
	}
	within := Plan{Slices: []Slice{{ImageID: "a", Start: 0, Duration: 10.0005}}}
	if err := within.Validate(10); err != nil {
		t.Fatalf("expected epsilon tolerance, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != Equal {
		t.Fatalf("empty should default to equal: %v %v", s, err)
	}
	if s, err := ParseStrategy(" Proportional "); err != nil || s != Proportional {
		t.Fatalf("expected proportional: %v %v", s, err)
	}
	if _, err := ParseStrategy("shuffle"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	approved := map[string]bool{"a": true, "b": true}
	ids, err := Resolve([]string{"b", "a", "b"}, approved)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ids) != 3 || ids[0] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, err := Resolve([]string{"a", "c"}, approved); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unapproved id, got %v", err)
	}
	if _, err := Resolve(nil, approved); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty request, got %v", err)
	}
}
