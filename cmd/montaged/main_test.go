package main

import (
	"context"
	"io"
	"net/http"
	"testing"

	"montage/internal/api"
	"montage/internal/logging"
	"montage/internal/testsupport"
)

func TestBootstrapServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Paths.APIToken = "token"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := bootstrap(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := api.NewClient(d.Addr(), api.WithToken("token"))
	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.StorageBackend != "local" {
		t.Fatalf("status = %+v", status)
	}

	if status.ProjectCount != 0 {
		t.Fatalf("project count on a fresh database = %d", status.ProjectCount)
	}
	if _, err := client.CreateProject(ctx, api.CreateProjectRequest{ID: "demo", Name: "Demo"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	preview, err := client.CreatePreview(ctx, "demo", api.PreviewRequest{Prompt: "city lights"})
	if err != nil {
		t.Fatalf("CreatePreview: %v", err)
	}
	resp, err := http.Get("http://" + d.Addr() + preview.PreviewURL)
	if err != nil {
		t.Fatalf("GET preview: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d (url %s)", resp.StatusCode, preview.PreviewURL)
	}
}
