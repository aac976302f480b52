package main

import (
	"context"
	"fmt"
	"log/slog"

	"montage/internal/api"
	"montage/internal/approval"
	"montage/internal/assets"
	"montage/internal/config"
	"montage/internal/daemon"
	"montage/internal/generator"
	"montage/internal/media/ffprobe"
	"montage/internal/pipeline"
	"montage/internal/projects"
	"montage/internal/render"
	"montage/internal/scheduler"
	"montage/internal/store"
	"montage/internal/tracks"
)

// bootstrap opens the store and asset backend and wires every service into
// a daemon serving the HTTP API.
func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	assetStore, err := assets.New(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open asset store: %w", err)
	}

	defaults := pipeline.DefaultSettings(cfg.Composition)
	registry := approval.New(st, assetStore, generator.New(cfg), logger)
	catalog := projects.New(st, assetStore, logger)
	library := tracks.New(st, assetStore, tracks.FFprobe(cfg.FFprobeBinary()), logger)
	renderer := render.NewFFmpeg(cfg.FFmpegBinary(), render.EncodingFromConfig(cfg.Render), logger)
	runner := pipeline.New(st, assetStore, renderer, pipeline.Options{
		StagingDir:  cfg.Paths.StagingDir,
		Parallelism: cfg.Render.Parallelism,
		Prober:      newProber(cfg.FFprobeBinary()),
	}, logger)
	sched := scheduler.New(st, assetStore, runner, scheduler.Options{
		Workers:      cfg.Workflow.Workers,
		PollInterval: cfg.PollInterval(),
		StagingDir:   cfg.Paths.StagingDir,
		Defaults:     defaults,
	}, logger)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     st,
		Scheduler: sched,
		Approval:  registry,
	}, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	filesRoot := ""
	if local, ok := assetStore.(*assets.Local); ok {
		filesRoot = local.Root()
	}
	server := api.NewServer(api.Options{
		Projects:  catalog,
		Tracks:    library,
		Approval:  registry,
		Scheduler: sched,
		Defaults:  defaults,
		Status:    d.Status,
		FilesRoot: filesRoot,
		Token:     cfg.Paths.APIToken,
		Logger:    logger,
	})
	d.Serve(server.Handler())
	return d, nil
}

func newProber(binary string) pipeline.Prober {
	return func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, binary, path)
	}
}
