package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/services"
	"montage/internal/staging"
	"montage/internal/store"
)

const errorRetryInterval = 5 * time.Second

// Start recovers jobs interrupted by a previous process and launches the
// worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.mu.Unlock()

	if err := s.recoverInterrupted(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(s.opts.Workers)
	for i := range s.opts.Workers {
		go s.runWorker(runCtx, i)
	}
	s.logger.Info("scheduler started", logging.Int("workers", s.opts.Workers))
	return nil
}

// Stop cancels in-flight work and waits for workers to exit. Jobs
// interrupted this way are failed with store.DaemonStopReason.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Wake nudges an idle worker to look for queued jobs.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) recoverInterrupted(ctx context.Context) error {
	ids, err := s.store.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	for _, id := range ids {
		if err := staging.Remove(s.opts.StagingDir, id); err != nil {
			s.logger.Warn("failed to remove interrupted job work dir",
				logging.String(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}
	if len(ids) > 0 {
		logging.WarnWithContext(s.logger, "failed jobs interrupted by previous shutdown", "jobs_recovered",
			logging.Int("count", len(ids)),
			logging.String(logging.FieldErrorHint, "resubmit the affected compositions"),
			logging.String(logging.FieldImpact, "interrupted compositions were not produced"),
		)
	}

	active, err := s.ActiveJobIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}
	staging.CleanOrphaned(ctx, s.opts.StagingDir, active, s.logger)
	return nil
}

func (s *Scheduler) runWorker(ctx context.Context, index int) {
	defer s.wg.Done()
	logger := s.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := s.store.ClaimNextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setLastError(err)
			logger.Error("failed to claim queued job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_claim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			s.sleep(ctx, errorRetryInterval)
			continue
		}
		if job == nil {
			s.waitForWork(ctx)
			continue
		}
		s.process(ctx, logger, job)
	}
}

func (s *Scheduler) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-time.After(s.opts.PollInterval):
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// process runs one claimed job and records its terminal state. Persistence
// after the run uses a context detached from shutdown so the final state is
// always written.
func (s *Scheduler) process(ctx context.Context, logger *slog.Logger, job *store.Job) {
	jobCtx := services.WithProjectID(services.WithJobID(ctx, job.ID), job.ProjectID)
	logger = logging.WithContext(jobCtx, logger)
	logger.Info("composition started", logging.String(logging.FieldEventType, "job_started"))
	started := time.Now()

	result, err := s.runner.Run(jobCtx, job, &storeReporter{store: s.store, jobID: job.ID})
	persistCtx := context.WithoutCancel(jobCtx)

	switch {
	case err == nil:
		s.complete(persistCtx, logger, job, result, time.Since(started))
	case errors.Is(err, services.ErrCancelled):
		s.markCancelled(persistCtx, logger, job.ID, "Cancelled")
	case ctx.Err() != nil:
		if ferr := s.store.FailJob(persistCtx, job.ID, string(services.KindInternal), store.DaemonStopReason); ferr != nil {
			logger.Error("failed to persist interrupted job", logging.Error(ferr))
		}
		logger.Info("composition interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
	default:
		// A stage that fails after cancellation was requested still ends cancelled.
		if cancelled, cerr := s.store.CancelRequested(persistCtx, job.ID); cerr == nil && cancelled {
			logger.Debug("stage failed after cancellation request", logging.Error(err))
			s.markCancelled(persistCtx, logger, job.ID, "Cancelled")
			return
		}
		s.fail(persistCtx, logger, job.ID, err)
	}
}

func (s *Scheduler) complete(ctx context.Context, logger *slog.Logger, job *store.Job, result pipeline.Result, elapsed time.Duration) {
	ok, err := s.store.CompleteJob(ctx, job.ID, result.ResultRef, "Composition ready")
	if err != nil {
		s.setLastError(err)
		logger.Error("failed to persist job completion",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_complete_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
		// The job must leave running so the project's slot is released.
		s.discardOutput(ctx, logger, result.ResultRef)
		s.fail(ctx, logger, job.ID, services.Wrap(services.ErrResource, "scheduler", "complete", "record completion", err))
		return
	}
	if !ok {
		// Cancellation raced the final checkpoint; the output is never reported.
		s.discardOutput(ctx, logger, result.ResultRef)
		s.markCancelled(ctx, logger, job.ID, "Cancelled")
		return
	}
	logger.Info("composition succeeded",
		logging.String("result_ref", result.ResultRef),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Int("slices", result.Slices),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "job_succeeded"),
	)
}

func (s *Scheduler) discardOutput(ctx context.Context, logger *slog.Logger, ref string) {
	if ref == "" || s.assets == nil {
		return
	}
	if err := s.assets.Delete(ctx, ref); err != nil {
		logger.Warn("failed to delete unreported output",
			logging.String("key", ref),
			logging.Error(err),
			logging.String(logging.FieldEventType, "output_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "delete the file from the asset store manually"),
			logging.String(logging.FieldImpact, "unreferenced video remains in storage"),
		)
	}
}

func (s *Scheduler) markCancelled(ctx context.Context, logger *slog.Logger, jobID, message string) {
	if err := s.store.MarkCancelled(ctx, jobID, message); err != nil {
		s.setLastError(err)
		logger.Error("failed to persist cancellation", logging.Error(err))
		return
	}
	logger.Info("composition cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
}

func (s *Scheduler) fail(ctx context.Context, logger *slog.Logger, jobID string, runErr error) {
	details := services.Details(runErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = "composition failed without error detail"
	}
	if err := s.store.FailJob(ctx, jobID, string(details.Kind), message); err != nil {
		s.setLastError(err)
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	logging.ErrorWithContext(logger, "composition failed", "job_failed",
		logging.String("error_kind", string(details.Kind)),
		logging.String("error_message", message),
		logging.Bool("retryable", services.IsRetryable(runErr)),
		logging.String(logging.FieldErrorHint, failureHint(details.Kind)),
		logging.String(logging.FieldImpact, "no video produced for this job"),
	)
}

func failureHint(kind services.Kind) string {
	switch kind {
	case services.KindValidation:
		return "fix the composition inputs and resubmit"
	case services.KindExternalService:
		return "check the backend service and resubmit"
	case services.KindRender:
		return "inspect ffmpeg output in the daemon log"
	case services.KindResource:
		return "check the asset store and staging directory"
	default:
		return "see daemon log for details"
	}
}

// storeReporter persists checkpoints and surfaces cancellation requests.
type storeReporter struct {
	store *store.Store
	jobID string
}

func (r *storeReporter) Checkpoint(ctx context.Context, stage pipeline.Stage, progress float64, message string) error {
	cancelled, err := r.store.UpdateProgress(ctx, r.jobID, string(stage), progress, message)
	if err != nil {
		return services.Wrap(services.ErrResource, "scheduler", "checkpoint", "persist progress", err)
	}
	if cancelled {
		return services.Wrap(services.ErrCancelled, "scheduler", "checkpoint", "cancellation requested", nil)
	}
	return nil
}

func (r *storeReporter) Progress(ctx context.Context, progress float64) error {
	if err := r.store.RecordProgress(ctx, r.jobID, progress); err != nil {
		return services.Wrap(services.ErrResource, "scheduler", "progress", "persist progress", err)
	}
	return nil
}
