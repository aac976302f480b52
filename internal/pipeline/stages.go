package pipeline

// Stage names a pipeline phase.
type Stage string

const (
	StageValidate     Stage = "validate"
	StageTimeline     Stage = "timeline"
	StageDistribution Stage = "distribution"
	StageRender       Stage = "render"
	StageMux          Stage = "mux"
	StageFinalize     Stage = "finalize"
)

// Range is the progress span a stage covers.
type Range struct {
	Start float64
	End   float64
}

var stageRanges = map[Stage]Range{
	StageValidate:     {0, 5},
	StageTimeline:     {5, 10},
	StageDistribution: {10, 15},
	StageRender:       {15, 90},
	StageMux:          {90, 98},
	StageFinalize:     {98, 100},
}

// Stages lists the stages in execution order.
func Stages() []Stage {
	return []Stage{StageValidate, StageTimeline, StageDistribution, StageRender, StageMux, StageFinalize}
}

// RangeOf returns the progress span for stage.
func RangeOf(stage Stage) Range {
	return stageRanges[stage]
}

// At interpolates a fraction [0,1] of the stage into overall progress.
func (r Range) At(fraction float64) float64 {
	fraction = max(0, min(1, fraction))
	return r.Start + (r.End-r.Start)*fraction
}
