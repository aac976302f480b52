package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"montage/internal/api"
	"montage/internal/approval"
	"montage/internal/assets"
	"montage/internal/config"
	"montage/internal/generator"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/projects"
	"montage/internal/scheduler"
	"montage/internal/store"
	"montage/internal/tracks"
)

const testToken = "cli-token"

type cliTestEnv struct {
	configPath string
	baseDir    string
	store      *store.Store
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.Root = filepath.Join(base, "assets")
	cfg := &cfgVal
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	local, err := assets.NewLocal(cfg.Storage.Root, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	logger := logging.NewNop()
	defaults := pipeline.DefaultSettings(cfg.Composition)
	srv := api.NewServer(api.Options{
		Projects:  projects.New(st, local, logger),
		Tracks:    tracks.New(st, local, nil, logger),
		Approval:  approval.New(st, local, generator.NewPlaceholder(8, 8), logger),
		Scheduler: scheduler.New(st, local, nil, scheduler.Options{Defaults: defaults}, logger),
		Defaults:  defaults,
		Status: func(context.Context) api.DaemonStatus {
			return api.DaemonStatus{
				Running:        true,
				PID:            42,
				StorageBackend: "local",
				Generator:      "placeholder",
				Scheduler:      api.SchedulerStatus{Running: true, Workers: 1},
				Dependencies: []api.DependencyStatus{
					{Name: "FFmpeg", Command: "ffmpeg", Available: true, Version: "ffmpeg version 7.1"},
				},
			}
		},
		FilesRoot: local.Root(),
		Token:     testToken,
		Logger:    logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	parsed, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
staging_dir = %q
log_dir = %q
api_bind = %q
api_token = %q

[storage]
backend = "local"
root = %q
`, cfg.Paths.DataDir, cfg.Paths.StagingDir, cfg.Paths.LogDir, parsed.Host, testToken, cfg.Storage.Root)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{configPath: configPath, baseDir: base, store: st}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Running (pid 42)", "placeholder", "ffmpeg version 7.1", "1 workers"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIStatusDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"--api", "127.0.0.1:1", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Not running") {
		t.Fatalf("expected not running, got %q", out)
	}
}

func TestCLIUnreachableDaemonError(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"--api", "127.0.0.1:1", "track", "list", "-p", "demo"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "start montaged first") {
		t.Fatalf("expected connection hint, got %v", err)
	}
}

func TestCLICompositionWorkflow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"project", "create", "Demo", "Reel", "--id", "demo"}, env.configPath)
	if err != nil {
		t.Fatalf("project create: %v", err)
	}
	if !strings.Contains(out, "Created project demo (Demo Reel)") {
		t.Fatalf("project create output: %q", out)
	}

	audio := filepath.Join(env.baseDir, "song.mp3")
	if err := os.WriteFile(audio, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	out, _, err = runCLI(t, []string{"--json", "track", "add", audio, "-p", "demo", "--duration", "30"}, env.configPath)
	if err != nil {
		t.Fatalf("track add: %v", err)
	}
	var track api.Track
	if err := json.Unmarshal([]byte(out), &track); err != nil {
		t.Fatalf("decode track: %v (%q)", err, out)
	}

	out, _, err = runCLI(t, []string{"track", "list", "-p", "demo"}, env.configPath)
	if err != nil {
		t.Fatalf("track list: %v", err)
	}
	if !strings.Contains(out, "song.mp3") || !strings.Contains(out, "30.0s") {
		t.Fatalf("track list output: %q", out)
	}

	out, _, err = runCLI(t, []string{"--json", "image", "preview", "-p", "demo", "--prompt", "aurora", "--param", "steps=20"}, env.configPath)
	if err != nil {
		t.Fatalf("image preview: %v", err)
	}
	var preview api.PreviewResponse
	if err := json.Unmarshal([]byte(out), &preview); err != nil {
		t.Fatalf("decode preview: %v (%q)", err, out)
	}

	out, _, err = runCLI(t, []string{"image", "approve", preview.PreviewID}, env.configPath)
	if err != nil {
		t.Fatalf("image approve: %v", err)
	}
	if !strings.Contains(out, "Approved image "+preview.PreviewID) {
		t.Fatalf("approve output: %q", out)
	}

	out, _, err = runCLI(t, []string{"image", "list", "-p", "demo", "-s", "approved"}, env.configPath)
	if err != nil {
		t.Fatalf("image list: %v", err)
	}
	if !strings.Contains(out, preview.PreviewID) {
		t.Fatalf("image list output: %q", out)
	}

	manifestPath := filepath.Join(env.baseDir, "compose.yaml")
	manifestBody := fmt.Sprintf("project: demo\ntracks: [%s]\nimages: [%s]\nsettings:\n  fps: 24\n", track.ID, preview.PreviewID)
	if err := os.WriteFile(manifestPath, []byte(manifestBody), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	out, _, err = runCLI(t, []string{"--json", "compose", "-f", manifestPath}, env.configPath)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	var submitted api.CompositionResponse
	if err := json.Unmarshal([]byte(out), &submitted); err != nil {
		t.Fatalf("decode compose: %v (%q)", err, out)
	}

	job, err := env.store.GetJob(context.Background(), submitted.JobID)
	if err != nil || job == nil {
		t.Fatalf("GetJob: %v", err)
	}
	settings, err := pipeline.DecodeSettings(job.SettingsJSON)
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if settings.FPS != 24 || settings.Resolution != "1920x1080" {
		t.Fatalf("settings = %+v", settings)
	}

	_, _, err = runCLI(t, []string{"compose", "-f", manifestPath}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "active composition job") {
		t.Fatalf("expected conflict for second compose, got %v", err)
	}

	out, _, err = runCLI(t, []string{"job", "status", submitted.JobID}, env.configPath)
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if !strings.Contains(out, "queued") {
		t.Fatalf("job status output: %q", out)
	}

	out, _, err = runCLI(t, []string{"job", "cancel", submitted.JobID}, env.configPath)
	if err != nil {
		t.Fatalf("job cancel: %v", err)
	}
	if !strings.Contains(out, "Cancelled job "+submitted.JobID) {
		t.Fatalf("job cancel output: %q", out)
	}

	out, _, err = runCLI(t, []string{"job", "list", "-p", "demo", "-s", "cancelled"}, env.configPath)
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	if !strings.Contains(out, submitted.JobID) {
		t.Fatalf("job list output: %q", out)
	}
}

func TestCLIProjectCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, _, err := runCLI(t, []string{"project", "create", "Tour", "--id", "tour"}, env.configPath); err != nil {
		t.Fatalf("project create: %v", err)
	}
	out, _, err := runCLI(t, []string{"project", "update", "tour", "--status", "active"}, env.configPath)
	if err != nil {
		t.Fatalf("project update: %v", err)
	}
	if !strings.Contains(out, "Updated project tour (Tour, active)") {
		t.Fatalf("project update output: %q", out)
	}
	if _, _, err := runCLI(t, []string{"project", "update", "tour"}, env.configPath); err == nil {
		t.Fatal("expected error for update without changes")
	}

	out, _, err = runCLI(t, []string{"project", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("project list: %v", err)
	}
	if !strings.Contains(out, "tour") || !strings.Contains(out, "active") {
		t.Fatalf("project list output: %q", out)
	}

	out, _, err = runCLI(t, []string{"project", "videos", "tour"}, env.configPath)
	if err != nil {
		t.Fatalf("project videos: %v", err)
	}
	if !strings.Contains(out, "No videos rendered") {
		t.Fatalf("empty videos output: %q", out)
	}

	job := &store.Job{ProjectID: "tour", SettingsJSON: `{"resolution":"1920x1080"}`}
	if err := env.store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := env.store.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if ok, err := env.store.CompleteJob(ctx, job.ID, "projects/tour/videos/final.mp4", "done"); err != nil || !ok {
		t.Fatalf("CompleteJob: ok=%v err=%v", ok, err)
	}
	if err := env.store.RecordOutput(ctx, job.ID, 185, 3<<20); err != nil {
		t.Fatalf("RecordOutput: %v", err)
	}
	out, _, err = runCLI(t, []string{"project", "videos", "tour"}, env.configPath)
	if err != nil {
		t.Fatalf("project videos: %v", err)
	}
	for _, want := range []string{job.ID, "185.0s", "1920x1080", "3.0 MiB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("videos output missing %q: %q", want, out)
		}
	}

	out, _, err = runCLI(t, []string{"project", "rm", "tour"}, env.configPath)
	if err != nil {
		t.Fatalf("project rm: %v", err)
	}
	if !strings.Contains(out, "Removed project tour") {
		t.Fatalf("project rm output: %q", out)
	}
	if _, _, err := runCLI(t, []string{"project", "show", "tour"}, env.configPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found after rm, got %v", err)
	}
}

func TestCLIConfigShowRedactsToken(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, testToken) || !strings.Contains(out, redacted) {
		t.Fatalf("token not redacted: %q", out)
	}
}

func TestCLIConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "montage.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("config init output: %q", out)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}
