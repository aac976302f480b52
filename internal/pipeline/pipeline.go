// Package pipeline runs one composition job through its stages:
// validate, timeline, distribution, render, mux and finalize.
//
// Stage boundaries are the only cancellation points. Before each stage the
// Reporter persists the stage's starting progress and reports whether the
// job was asked to stop; work inside a stage is never interrupted except by
// context cancellation at daemon shutdown. The render stage additionally
// reports progress as slices finish.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"montage/internal/assets"
	"montage/internal/distribution"
	"montage/internal/logging"
	"montage/internal/media/ffprobe"
	"montage/internal/render"
	"montage/internal/services"
	"montage/internal/staging"
	"montage/internal/store"
	"montage/internal/textutil"
	"montage/internal/timeline"
)

// Reporter records checkpoints for a job.
type Reporter interface {
	// Checkpoint persists stage progress and returns services.ErrCancelled
	// when cancellation has been requested.
	Checkpoint(ctx context.Context, stage Stage, progress float64, message string) error
	// Progress raises overall progress within the current stage. It never
	// reports cancellation.
	Progress(ctx context.Context, progress float64) error
}

// Prober inspects a rendered file. A nil prober skips verification.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Result describes a successfully rendered composition.
type Result struct {
	ResultRef       string  `json:"result_ref"`
	DurationSeconds float64 `json:"duration_seconds"`
	Slices          int     `json:"slices"`
}

// Options configure a Pipeline.
type Options struct {
	StagingDir  string
	Parallelism int
	Prober      Prober
}

// Pipeline executes composition jobs.
type Pipeline struct {
	store    *store.Store
	assets   assets.Store
	renderer render.Renderer
	opts     Options
	logger   *slog.Logger
}

// New creates a pipeline.
func New(st *store.Store, assetStore assets.Store, renderer render.Renderer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Pipeline{
		store:    st,
		assets:   assetStore,
		renderer: renderer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// run carries the state accumulated across stages of one job.
type run struct {
	job      *store.Job
	rep      Reporter
	spec     render.VideoSpec
	strategy distribution.Strategy
	tracks   []*store.Track
	imageIDs []string
	images   map[string]*store.Image
	timeline timeline.Timeline
	plan     distribution.Plan
	ws       staging.Workspace
	video    string
	output   string
	logger   *slog.Logger
}

// Run executes every stage for job. The job's work directory is removed
// before returning regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, job *store.Job, rep Reporter) (Result, error) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithProjectID(ctx, job.ProjectID)
	r := &run{job: job, rep: rep, logger: logging.WithContext(ctx, p.logger)}
	defer func() {
		if err := staging.Remove(p.opts.StagingDir, job.ID); err != nil {
			r.logger.Warn("failed to remove job work directory",
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "stale staging cleanup will retry"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}()

	steps := []struct {
		stage   Stage
		message string
		fn      func(context.Context, *run) error
	}{
		{StageValidate, "Validating composition", p.validate},
		{StageTimeline, "Building audio timeline", p.buildTimeline},
		{StageDistribution, "Planning image distribution", p.planDistribution},
		{StageRender, "Rendering video", p.render},
		{StageMux, "Muxing audio", p.mux},
		{StageFinalize, "Finalizing video", p.finalize},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := rep.Checkpoint(ctx, step.stage, RangeOf(step.stage).Start, step.message); err != nil {
			p.discardOutput(ctx, r)
			return Result{}, err
		}
		stageCtx := services.WithStage(ctx, string(step.stage))
		r.logger.Debug("stage started", logging.String(logging.FieldStage, string(step.stage)))
		if err := step.fn(stageCtx, r); err != nil {
			p.discardOutput(ctx, r)
			return Result{}, err
		}
	}

	return Result{
		ResultRef:       r.output,
		DurationSeconds: r.timeline.TotalDuration,
		Slices:          len(r.plan.Slices),
	}, nil
}

// discardOutput deletes a committed output that will never be reported.
func (p *Pipeline) discardOutput(ctx context.Context, r *run) {
	if r.output == "" {
		return
	}
	if err := p.assets.Delete(context.WithoutCancel(ctx), r.output); err != nil {
		r.logger.Warn("failed to delete abandoned output",
			logging.String("key", r.output),
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "delete the file from the asset store manually"),
			logging.String(logging.FieldImpact, "unreferenced video remains in storage"),
		)
	}
	r.output = ""
}

func (p *Pipeline) validate(ctx context.Context, r *run) error {
	settings, err := DecodeSettings(r.job.SettingsJSON)
	if err != nil {
		return err
	}
	r.spec, r.strategy, err = settings.Validate()
	if err != nil {
		return err
	}
	if len(r.job.TrackIDs) == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "validate", "at least one audio track is required", nil)
	}

	trackMap, err := p.store.GetTracks(ctx, r.job.TrackIDs)
	if err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "validate", "load tracks", err)
	}
	r.tracks = make([]*store.Track, 0, len(r.job.TrackIDs))
	for _, id := range r.job.TrackIDs {
		track, ok := trackMap[id]
		if !ok || track.ProjectID != r.job.ProjectID {
			return services.Wrap(services.ErrValidation, "pipeline", "validate", fmt.Sprintf("audio track %s not found in project", id), nil)
		}
		r.tracks = append(r.tracks, track)
	}

	r.images, err = p.store.GetImages(ctx, r.job.ImageIDs)
	if err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "validate", "load images", err)
	}
	approved := make(map[string]bool, len(r.images))
	for id, image := range r.images {
		approved[id] = image.Status == store.ImageApproved && image.ProjectID == r.job.ProjectID
	}
	r.imageIDs, err = distribution.Resolve(r.job.ImageIDs, approved)
	return err
}

func (p *Pipeline) buildTimeline(_ context.Context, r *run) error {
	inputs := make([]timeline.Track, len(r.tracks))
	for i, track := range r.tracks {
		inputs[i] = timeline.Track{
			ID:              track.ID,
			Filename:        track.Filename,
			DurationSeconds: track.DurationSeconds,
			OrderIndex:      i,
		}
	}
	tl, err := timeline.Build(inputs)
	if err != nil {
		return err
	}
	r.timeline = tl
	return nil
}

func (p *Pipeline) planDistribution(ctx context.Context, r *run) error {
	plan, err := distribution.Make(r.timeline.TotalDuration, r.imageIDs, r.strategy)
	if err != nil {
		return err
	}
	if err := plan.Validate(r.timeline.TotalDuration); err != nil {
		return err
	}
	r.plan = plan

	timelineJSON, err := json.Marshal(r.timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := p.store.SaveSnapshot(ctx, r.job.ID, string(timelineJSON), string(planJSON)); err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "distribution", "save snapshot", err)
	}
	r.logger.Info("distribution planned",
		logging.Int("slices", len(plan.Slices)),
		logging.String("strategy", string(plan.Strategy)),
		logging.Float64("total_seconds", plan.Total),
		logging.Float64("shortest_slice_seconds", plan.MinDuration()),
	)
	return nil
}

func (p *Pipeline) render(ctx context.Context, r *run) error {
	ws, err := staging.Prepare(p.opts.StagingDir, r.job.ID)
	if err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "render", "prepare work dir", err)
	}
	r.ws = ws

	localImages := make(map[string]string, len(r.imageIDs))
	for _, id := range r.imageIDs {
		if _, done := localImages[id]; done {
			continue
		}
		image := r.images[id]
		local := filepath.Join(ws.Images, id+path.Ext(image.FileRef))
		if err := p.assets.Fetch(ctx, image.FileRef, local); err != nil {
			return stageResourceError("render", fmt.Sprintf("fetch image %s", id), err)
		}
		localImages[id] = local
	}

	durations := make([]float64, len(r.plan.Slices))
	for i, slice := range r.plan.Slices {
		durations[i] = slice.Duration
	}
	timings := render.Layout(r.spec, durations)
	clips := make([]string, len(r.plan.Slices))

	var (
		mu          sync.Mutex
		done        int
		sampler     = logging.NewProgressSampler(10)
		span        = RangeOf(StageRender)
		progressErr bool
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.opts.Parallelism)
	for i, slice := range r.plan.Slices {
		clips[i] = filepath.Join(ws.Clips, fmt.Sprintf("slice-%05d.mp4", i))
		job := render.Slice{
			Index:     i,
			ImagePath: localImages[slice.ImageID],
			Output:    clips[i],
			Timing:    timings[i],
		}
		group.Go(func() error {
			if err := p.renderer.RenderSlice(groupCtx, job, r.spec); err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			done++
			fraction := float64(done) / float64(len(clips))
			if err := r.rep.Progress(ctx, span.At(fraction)); err != nil && !progressErr {
				progressErr = true
				r.logger.Warn("failed to record render progress",
					logging.Error(err),
					logging.String(logging.FieldEventType, "progress_update_failed"),
					logging.String(logging.FieldErrorHint, "check database access"),
					logging.String(logging.FieldImpact, "job progress lags until the next stage"),
				)
			}
			percent := fraction * 100
			if sampler.ShouldLog(percent, string(StageRender)) {
				r.logger.Info("rendering slices",
					logging.Int("done", done),
					logging.Int("total", len(clips)),
					logging.Float64("percent", math.Round(percent)),
				)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	r.video = filepath.Join(ws.Root, "video.mp4")
	return p.renderer.Join(ctx, clips, timings, r.video, r.spec)
}

func (p *Pipeline) mux(ctx context.Context, r *run) error {
	audio := make([]string, len(r.tracks))
	for i, track := range r.tracks {
		local := filepath.Join(r.ws.Audio, fmt.Sprintf("%03d%s", i, path.Ext(track.FileRef)))
		if err := p.assets.Fetch(ctx, track.FileRef, local); err != nil {
			return stageResourceError("mux", fmt.Sprintf("fetch audio %s", track.ID), err)
		}
		audio[i] = local
	}
	muxed := filepath.Join(r.ws.Root, "composition.mp4")
	if err := p.renderer.Mux(ctx, r.video, audio, muxed); err != nil {
		return err
	}
	r.video = muxed
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, r *run) error {
	seconds := r.timeline.TotalDuration
	if p.opts.Prober != nil {
		result, err := p.opts.Prober(ctx, r.video)
		if err != nil {
			return services.Wrap(services.ErrRender, "pipeline", "finalize", "probe output", err)
		}
		tolerance := math.Max(0.5, 2/float64(r.spec.FPS))
		if err := result.Verify(ffprobe.Expectation{
			Width:           r.spec.Width,
			Height:          r.spec.Height,
			DurationSeconds: r.timeline.TotalDuration,
			Tolerance:       tolerance,
		}); err != nil {
			return services.Wrap(services.ErrRender, "pipeline", "finalize", "verify output", err)
		}
		if probed := result.DurationSeconds(); probed > 0 {
			seconds = probed
		}
	}
	var size int64
	if info, err := os.Stat(r.video); err == nil {
		size = info.Size()
	}

	key := assets.VideoKey(r.job.ProjectID, OutputName(r.job.ProjectID, r.job.ID))
	if err := p.assets.PutFile(ctx, key, r.video, "video/mp4"); err != nil {
		return stageResourceError("finalize", "store video", err)
	}
	r.output = key
	if err := p.store.RecordOutput(ctx, r.job.ID, seconds, size); err != nil {
		r.logger.Warn("failed to record output metadata",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_metadata_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
			logging.String(logging.FieldImpact, "video listing falls back to the planned duration"),
		)
	}
	r.logger.Info("composition stored",
		logging.String("key", key),
		logging.Float64("duration_seconds", seconds),
		logging.Int64("bytes", size),
	)
	return nil
}

// OutputName is the published filename for a job's video.
func OutputName(projectID, jobID string) string {
	short := strings.ReplaceAll(jobID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("video_%s_%s.mp4", textutil.SanitizeToken(projectID), short)
}

func stageResourceError(stage, message string, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		return services.Wrap(services.ErrResource, "pipeline", stage, message+": file missing from asset store", nil)
	}
	if errors.Is(err, services.ErrResource) {
		return err
	}
	return services.Wrap(services.ErrResource, "pipeline", stage, message, err)
}
