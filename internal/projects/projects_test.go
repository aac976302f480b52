package projects_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"montage/internal/assets"
	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/projects"
	"montage/internal/services"
	"montage/internal/store"
	"montage/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	assets  *assets.Local
	catalog *projects.Catalog
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	local, err := assets.NewLocal(cfg.Storage.Root, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return fixture{cfg: cfg, store: st, assets: local, catalog: projects.New(st, local, logging.NewNop())}
}

func (f fixture) put(t *testing.T, key string) {
	t.Helper()
	if err := f.assets.Put(context.Background(), key, strings.NewReader("data"), ""); err != nil {
		t.Fatalf("Put(%s): %v", key, err)
	}
}

// finishJob runs a job through the store to succeeded with the given output.
func (f fixture) finishJob(t *testing.T, project, ref string, settings pipeline.Settings, timelineJSON string) *store.Job {
	t.Helper()
	ctx := context.Background()
	raw, err := pipeline.EncodeSettings(settings)
	if err != nil {
		t.Fatalf("EncodeSettings: %v", err)
	}
	job := &store.Job{ProjectID: project, SettingsJSON: raw}
	if err := f.store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := f.store.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if timelineJSON != "" {
		if err := f.store.SaveSnapshot(ctx, job.ID, timelineJSON, ""); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}
	if ok, err := f.store.CompleteJob(ctx, job.ID, ref, "done"); err != nil || !ok {
		t.Fatalf("CompleteJob: ok=%v err=%v", ok, err)
	}
	return job
}

func TestCreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project, err := f.catalog.Create(ctx, projects.CreateRequest{ID: "album", Name: "  Summer   Album "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if project.Name != "Summer Album" || project.Status != store.ProjectDraft {
		t.Fatalf("project = %+v", project)
	}
	if _, err := f.catalog.Create(ctx, projects.CreateRequest{ID: "album", Name: "again"}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("duplicate err = %v", err)
	}
	generated, err := f.catalog.Create(ctx, projects.CreateRequest{Name: "Untitled"})
	if err != nil || generated.ID == "" {
		t.Fatalf("Create without id: %+v err=%v", generated, err)
	}

	updated, err := f.catalog.Update(ctx, "album", projects.UpdateRequest{Status: "Active"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Summer Album" || updated.Status != store.ProjectActive {
		t.Fatalf("updated = %+v", updated)
	}
	renamed, err := f.catalog.Update(ctx, "album", projects.UpdateRequest{Name: "Winter"})
	if err != nil || renamed.Name != "Winter" || renamed.Status != store.ProjectActive {
		t.Fatalf("rename = %+v err=%v", renamed, err)
	}

	list, err := f.catalog.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("List = %d err=%v", len(list), err)
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewProject(t, f.store, "p")

	cases := map[string]func() error{
		"bad id": func() error {
			_, err := f.catalog.Create(ctx, projects.CreateRequest{ID: "../x", Name: "n"})
			return err
		},
		"empty name": func() error {
			_, err := f.catalog.Create(ctx, projects.CreateRequest{Name: "   "})
			return err
		},
		"long name": func() error {
			_, err := f.catalog.Create(ctx, projects.CreateRequest{Name: strings.Repeat("x", 201)})
			return err
		},
		"bad status": func() error {
			_, err := f.catalog.Update(ctx, "p", projects.UpdateRequest{Status: "published"})
			return err
		},
	}
	for name, fn := range cases {
		if err := fn(); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}

	if _, err := f.catalog.Get(ctx, "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
	if _, err := f.catalog.Update(ctx, "ghost", projects.UpdateRequest{Name: "x"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Update err = %v", err)
	}
	if err := f.catalog.Delete(ctx, "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Delete err = %v", err)
	}
	if _, err := f.catalog.Videos(ctx, "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Videos err = %v", err)
	}
}

func TestDeleteRemovesRecordsAndFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewProject(t, f.store, "doomed")
	testsupport.NewProject(t, f.store, "kept")

	track := testsupport.NewTrack(t, f.store, "doomed", "a.mp3", 30)
	f.put(t, track.FileRef)
	image := testsupport.NewImage(t, f.store, "doomed", store.ImageApproved)
	f.put(t, image.FileRef)
	video := assets.VideoKey("doomed", "video_doomed_1.mp4")
	f.put(t, video)
	f.finishJob(t, "doomed", video, pipeline.DefaultSettings(f.cfg.Composition), "")
	survivor := testsupport.NewTrack(t, f.store, "kept", "b.mp3", 10)
	f.put(t, survivor.FileRef)

	if err := f.catalog.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, key := range []string{track.FileRef, image.FileRef, video} {
		if ok, _ := f.assets.Exists(ctx, key); ok {
			t.Fatalf("%s survived project delete", key)
		}
	}
	if ok, _ := f.assets.Exists(ctx, survivor.FileRef); !ok {
		t.Fatal("other project's file was deleted")
	}
	if _, err := f.catalog.Get(ctx, "doomed"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
}

func TestDeleteRefusesActiveJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewProject(t, f.store, "busy")
	if err := f.store.CreateJob(ctx, &store.Job{ProjectID: "busy"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := f.catalog.Delete(ctx, "busy"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, err := f.catalog.Get(ctx, "busy"); err != nil {
		t.Fatalf("project should survive refused delete: %v", err)
	}
}

func TestVideosListsSucceededJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewProject(t, f.store, "proj")

	settings := pipeline.DefaultSettings(f.cfg.Composition)
	settings.Resolution = "1280x720"
	measured := f.finishJob(t, "proj", "projects/proj/videos/a.mp4", settings, "")
	if err := f.store.RecordOutput(ctx, measured.ID, 95.2, 4096); err != nil {
		t.Fatalf("RecordOutput: %v", err)
	}
	planned := f.finishJob(t, "proj", "projects/proj/videos/b.mp4", settings, `{"tracks":[],"offsets":[0],"total_duration":42.5}`)

	failed := &store.Job{ProjectID: "proj"}
	if err := f.store.CreateJob(ctx, failed); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := f.store.FailJob(ctx, failed.ID, "render", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	videos, err := f.catalog.Videos(ctx, "proj")
	if err != nil {
		t.Fatalf("Videos: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("videos = %+v", videos)
	}
	byJob := map[string]projects.Video{}
	for _, v := range videos {
		byJob[v.JobID] = v
	}
	got := byJob[measured.ID]
	if got.DurationSeconds != 95.2 || got.SizeBytes != 4096 || got.Resolution != "1280x720" {
		t.Fatalf("measured video = %+v", got)
	}
	if !strings.HasSuffix(got.URL, "projects/proj/videos/a.mp4") || got.CreatedAt.IsZero() {
		t.Fatalf("measured video = %+v", got)
	}
	if fallback := byJob[planned.ID]; fallback.DurationSeconds != 42.5 || fallback.SizeBytes != 0 {
		t.Fatalf("planned video = %+v", fallback)
	}
}
