package daemon

import (
	"context"
	"time"

	"montage/internal/logging"
	"montage/internal/staging"
)

const minSweepInterval = time.Second

func (d *Daemon) maintenanceLoop(ctx context.Context) {
	interval := d.cfg.PreviewSweepInterval()
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.runMaintenance(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runMaintenance(ctx)
		}
	}
}

func (d *Daemon) runMaintenance(ctx context.Context) {
	d.expirePreviews(ctx, d.cfg.PreviewTTL())
	d.cleanStaging(ctx, d.cfg.StaleStagingAge())
}

// expirePreviews rejects previews that were neither approved nor rejected
// within ttl.
func (d *Daemon) expirePreviews(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	expired, err := d.approval.ExpirePreviews(ctx, ttl)
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "preview expiry sweep failed", "preview_sweep_failed",
			logging.Int("expired", expired),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "sweep retries on the next interval"),
		)
	}
	return expired
}

// cleanStaging removes job work directories older than maxAge that belong
// to no queued or running job.
func (d *Daemon) cleanStaging(ctx context.Context, maxAge time.Duration) []string {
	if maxAge <= 0 {
		return nil
	}
	active, err := d.scheduler.ActiveJobIDs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(d.logger, "staging cleanup skipped", "staging_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale work directories remain until the next sweep"),
			)
		}
		return nil
	}
	result := staging.CleanStale(ctx, d.cfg.Paths.StagingDir, maxAge, active, d.logger)
	for _, failure := range result.Errors {
		logging.WarnWithContext(d.logger, "failed to remove stale work directory", "staging_cleanup_failed",
			logging.String("path", failure.Path),
			logging.Error(failure.Err),
			logging.String(logging.FieldErrorHint, "check staging directory permissions"),
		)
	}
	return result.Removed
}
