package daemon

import (
	"context"
	"os"
	"strings"

	"montage/internal/api"
	"montage/internal/deps"
	"montage/internal/logging"
	"montage/internal/preflight"
	"montage/internal/staging"
)

// Status assembles the runtime summary served at /api/status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DatabasePath:   d.store.Path(),
		LockFilePath:   d.lockPath,
		StorageBackend: d.cfg.Storage.Backend,
		Generator:      generatorName(d.cfg.Generator.StableDiffusionURL),
		Scheduler: api.SchedulerStatus{
			Running: d.scheduler.Running(),
			Workers: d.cfg.Workflow.Workers,
		},
		ImageCounts: map[string]int{},
		JobCounts:   map[string]int{},
	}
	if err := d.scheduler.LastError(); err != nil {
		status.Scheduler.LastError = err.Error()
	}

	stats, err := d.store.Stats(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to collect store stats", "status_stats_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status counts are incomplete"),
		)
	}
	status.ProjectCount = stats.Projects
	status.TrackCount = stats.Tracks
	for key, count := range stats.Images {
		status.ImageCounts[string(key)] = count
	}
	for key, count := range stats.Jobs {
		status.JobCounts[string(key)] = count
	}

	dirs, err := staging.ListDirectories(d.cfg.Paths.StagingDir)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to list staging directories", "status_staging_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
		)
	}
	status.StagingDirs = len(dirs)
	for _, dir := range dirs {
		status.StagingBytes += dir.Size
	}

	for _, dep := range preflight.CheckSystemDeps(ctx, d.cfg) {
		status.Dependencies = append(status.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	for _, check := range preflight.RunAll(ctx, d.cfg) {
		status.Checks = append(status.Checks, api.CheckResult{
			Name:   check.Name,
			Passed: check.Passed,
			Detail: check.Detail,
		})
	}
	return status
}

// warnMissingDependencies logs once at startup when a required binary is
// absent. The daemon keeps running so previews and approvals still work.
func (d *Daemon) warnMissingDependencies(ctx context.Context) {
	missing := deps.Missing(preflight.CheckSystemDeps(ctx, d.cfg))
	if len(missing) == 0 {
		return
	}
	logging.WarnWithContext(d.logger, "required binaries missing", "dependency_missing",
		logging.String("missing", strings.Join(missing, ", ")),
		logging.String(logging.FieldErrorHint, "install ffmpeg or set render.ffmpeg_binary"),
		logging.String(logging.FieldImpact, "composition jobs will fail until the binary is available"),
	)
}

func generatorName(stableDiffusionURL string) string {
	if strings.TrimSpace(stableDiffusionURL) == "" {
		return "placeholder"
	}
	return "stable_diffusion"
}
