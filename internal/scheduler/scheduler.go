package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"montage/internal/assets"
	"montage/internal/distribution"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/services"
	"montage/internal/store"
	"montage/internal/textutil"
)

// Runner executes a claimed job.
type Runner interface {
	Run(ctx context.Context, job *store.Job, rep pipeline.Reporter) (pipeline.Result, error)
}

// SubmitRequest describes a composition to render.
type SubmitRequest struct {
	ProjectID string
	TrackIDs  []string
	ImageIDs  []string
	Settings  pipeline.Settings
}

// JobResult points at a finished video.
type JobResult struct {
	Ref string `json:"ref"`
	URL string `json:"url,omitempty"`
}

// JobError is the classified failure of a job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	Status     store.JobStatus `json:"status"`
	Progress   float64         `json:"progress"`
	Stage      string          `json:"stage,omitempty"`
	Message    string          `json:"message,omitempty"`
	Result     *JobResult      `json:"result,omitempty"`
	Error      *JobError       `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Options configure a Scheduler.
type Options struct {
	Workers      int
	PollInterval time.Duration
	StagingDir   string
	Defaults     pipeline.Settings
}

// Scheduler accepts composition jobs and runs them on a worker pool.
type Scheduler struct {
	store  *store.Store
	assets assets.Store
	runner Runner
	opts   Options
	logger *slog.Logger

	submitMu sync.Mutex
	wake     chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// New constructs a scheduler.
func New(st *store.Store, assetStore assets.Store, runner Runner, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Scheduler{
		store:  st,
		assets: assetStore,
		runner: runner,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		wake:   make(chan struct{}, 1),
	}
}

// Submit validates the request and queues a job. It returns ErrConflict when
// the project already has a queued or running job.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if !textutil.ValidID(projectID) {
		return "", services.Wrap(services.ErrValidation, "scheduler", "submit", fmt.Sprintf("invalid project id %q", req.ProjectID), nil)
	}
	if err := s.requireProject(ctx, projectID); err != nil {
		return "", err
	}
	settings := req.Settings.WithDefaults(s.opts.Defaults)
	if _, _, err := settings.Validate(); err != nil {
		return "", err
	}
	if err := s.checkInputs(ctx, projectID, req.TrackIDs, req.ImageIDs); err != nil {
		return "", err
	}
	raw, err := pipeline.EncodeSettings(settings)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "scheduler", "submit", "encode settings", err)
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	active, err := s.store.ActiveJob(ctx, projectID)
	if err != nil {
		return "", services.Wrap(services.ErrResource, "scheduler", "submit", "check active job", err)
	}
	if active != nil {
		return "", activeConflict(active.ID)
	}
	job := &store.Job{
		ProjectID:    projectID,
		Stage:        string(pipeline.StageValidate),
		Message:      "Queued",
		SettingsJSON: raw,
		TrackIDs:     append([]string(nil), req.TrackIDs...),
		ImageIDs:     append([]string(nil), req.ImageIDs...),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrActiveJobExists) {
			return "", activeConflict("")
		}
		return "", services.Wrap(services.ErrResource, "scheduler", "submit", "create job", err)
	}

	s.logger.Info("composition queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldProjectID, projectID),
		logging.Int("tracks", len(job.TrackIDs)),
		logging.Int("images", len(job.ImageIDs)),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	s.Wake()
	return job.ID, nil
}

func (s *Scheduler) requireProject(ctx context.Context, projectID string) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return services.Wrap(services.ErrResource, "scheduler", "submit", "load project", err)
	}
	if project == nil {
		return services.Wrap(services.ErrNotFound, "scheduler", "submit", fmt.Sprintf("project %s not found", projectID), nil)
	}
	return nil
}

// checkInputs rejects submissions that could never render. The pipeline
// re-checks at its validate stage since records may change while queued.
func (s *Scheduler) checkInputs(ctx context.Context, projectID string, trackIDs, imageIDs []string) error {
	if len(trackIDs) == 0 {
		return services.Wrap(services.ErrValidation, "scheduler", "submit", "at least one audio track is required", nil)
	}
	tracks, err := s.store.GetTracks(ctx, trackIDs)
	if err != nil {
		return services.Wrap(services.ErrResource, "scheduler", "submit", "load tracks", err)
	}
	for _, id := range trackIDs {
		track, ok := tracks[id]
		if !ok || track.ProjectID != projectID {
			return services.Wrap(services.ErrValidation, "scheduler", "submit", fmt.Sprintf("audio track %s not found in project", id), nil)
		}
	}
	images, err := s.store.GetImages(ctx, imageIDs)
	if err != nil {
		return services.Wrap(services.ErrResource, "scheduler", "submit", "load images", err)
	}
	approved := make(map[string]bool, len(images))
	for id, image := range images {
		approved[id] = image.Status == store.ImageApproved && image.ProjectID == projectID
	}
	_, err = distribution.Resolve(imageIDs, approved)
	return err
}

func activeConflict(jobID string) error {
	message := "project already has an active composition job"
	if jobID != "" {
		message = fmt.Sprintf("%s (%s)", message, jobID)
	}
	return services.Wrap(services.ErrConflict, "scheduler", "submit", message, nil)
}

// Status returns the current state of a job.
func (s *Scheduler) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return JobStatus{}, services.Wrap(services.ErrResource, "scheduler", "status", "load job", err)
	}
	if job == nil {
		return JobStatus{}, services.Wrap(services.ErrNotFound, "scheduler", "status", fmt.Sprintf("job %s not found", jobID), nil)
	}
	return s.toStatus(job), nil
}

// Cancel stops a queued job immediately or flags a running job so it stops
// at its next checkpoint. Cancelling a finished job is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := s.store.RequestCancel(ctx, jobID)
	if err != nil {
		return JobStatus{}, services.Wrap(services.ErrResource, "scheduler", "cancel", "request cancel", err)
	}
	if job == nil {
		return JobStatus{}, services.Wrap(services.ErrNotFound, "scheduler", "cancel", fmt.Sprintf("job %s not found", jobID), nil)
	}
	s.logger.Info("cancellation requested",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("status", string(job.Status)),
		logging.String(logging.FieldEventType, "job_cancel_requested"),
	)
	return s.toStatus(job), nil
}

// List returns a project's jobs, newest first. An empty project lists all.
func (s *Scheduler) List(ctx context.Context, projectID string, statuses ...store.JobStatus) ([]JobStatus, error) {
	jobs, err := s.store.ListJobs(ctx, projectID, statuses...)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "scheduler", "list", "list jobs", err)
	}
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, s.toStatus(job))
	}
	return out, nil
}

// ActiveJobIDs returns ids of jobs currently queued or running.
func (s *Scheduler) ActiveJobIDs(ctx context.Context) (map[string]struct{}, error) {
	jobs, err := s.store.ListJobs(ctx, "", store.JobQueued, store.JobRunning)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		ids[job.ID] = struct{}{}
	}
	return ids, nil
}

func (s *Scheduler) toStatus(job *store.Job) JobStatus {
	status := JobStatus{
		ID:         job.ID,
		ProjectID:  job.ProjectID,
		Status:     job.Status,
		Progress:   job.Progress,
		Stage:      job.Stage,
		Message:    job.Message,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Status == store.JobSucceeded && job.ResultRef != "" {
		status.Result = &JobResult{Ref: job.ResultRef}
		if s.assets != nil {
			status.Result.URL = s.assets.URL(job.ResultRef)
		}
	}
	if job.Status == store.JobFailed {
		status.Error = &JobError{Kind: job.ErrorKind, Message: job.ErrorMessage}
	}
	return status
}

// Running reports whether the worker pool is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastError returns the most recent worker-level error, if any.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
