package tracks_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"montage/internal/assets"
	"montage/internal/logging"
	"montage/internal/services"
	"montage/internal/testsupport"
	"montage/internal/tracks"
)

func newLibrary(t *testing.T, prober tracks.DurationProber) (*tracks.Library, *assets.Local) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	local, err := assets.NewLocal(cfg.Storage.Root, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	testsupport.NewProject(t, st, "proj")
	return tracks.New(st, local, prober, logging.NewNop()), local
}

func fixedProbe(seconds float64) tracks.DurationProber {
	return func(context.Context, string) (float64, error) { return seconds, nil }
}

func TestRegisterProbesDuration(t *testing.T) {
	lib, local := newLibrary(t, fixedProbe(95.5))
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "Intro Song.MP3")
	testsupport.WriteFile(t, src, 512)

	track, err := lib.Register(ctx, "proj", tracks.RegisterRequest{SourcePath: src})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if track.DurationSeconds != 95.5 {
		t.Fatalf("duration = %v", track.DurationSeconds)
	}
	if track.Filename != "Intro Song.MP3" {
		t.Fatalf("filename = %q", track.Filename)
	}
	if track.FileRef != assets.AudioKey("proj", track.ID, ".mp3") {
		t.Fatalf("file ref = %q", track.FileRef)
	}
	if ok, _ := local.Exists(ctx, track.FileRef); !ok {
		t.Fatal("audio not copied into storage")
	}

	listed, err := lib.List(ctx, "proj")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != track.ID {
		t.Fatalf("listed = %+v", listed)
	}
}

func TestRegisterUsesExplicitDuration(t *testing.T) {
	called := false
	lib, _ := newLibrary(t, func(context.Context, string) (float64, error) {
		called = true
		return 1, nil
	})
	src := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, src, 16)

	track, err := lib.Register(context.Background(), "proj", tracks.RegisterRequest{SourcePath: src, Filename: "Verse: 1", DurationSeconds: 42})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if called {
		t.Fatal("prober called despite explicit duration")
	}
	if track.DurationSeconds != 42 {
		t.Fatalf("duration = %v", track.DurationSeconds)
	}
	if track.Filename != "Verse- 1" {
		t.Fatalf("filename = %q", track.Filename)
	}
}

func TestRegisterValidation(t *testing.T) {
	lib, _ := newLibrary(t, func(context.Context, string) (float64, error) {
		return 0, errors.New("not audio")
	})
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "a.mp3")
	testsupport.WriteFile(t, src, 16)

	cases := map[string]struct {
		project string
		req     tracks.RegisterRequest
	}{
		"bad project":    {"a/b", tracks.RegisterRequest{SourcePath: src}},
		"missing source": {"proj", tracks.RegisterRequest{SourcePath: filepath.Join(t.TempDir(), "nope.mp3")}},
		"empty source":   {"proj", tracks.RegisterRequest{}},
		"directory":      {"proj", tracks.RegisterRequest{SourcePath: t.TempDir()}},
		"negative":       {"proj", tracks.RegisterRequest{SourcePath: src, DurationSeconds: -1}},
		"ffprobe error":  {"proj", tracks.RegisterRequest{SourcePath: src}},
	}
	for name, tc := range cases {
		if _, err := lib.Register(ctx, tc.project, tc.req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestRegisterUnknownProject(t *testing.T) {
	lib, _ := newLibrary(t, fixedProbe(10))
	src := filepath.Join(t.TempDir(), "a.mp3")
	testsupport.WriteFile(t, src, 16)

	_, err := lib.Register(context.Background(), "ghost", tracks.RegisterRequest{SourcePath: src})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	listed, err := lib.List(context.Background(), "ghost")
	if err != nil || len(listed) != 0 {
		t.Fatalf("List = %v err=%v", listed, err)
	}
}

func TestRemoveDeletesFileAndRecord(t *testing.T) {
	lib, local := newLibrary(t, fixedProbe(10))
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "a.mp3")
	testsupport.WriteFile(t, src, 16)
	track, err := lib.Register(ctx, "proj", tracks.RegisterRequest{SourcePath: src})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := lib.Remove(ctx, track.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := local.Exists(ctx, track.FileRef); ok {
		t.Fatal("audio survived remove")
	}
	if _, err := lib.Get(ctx, track.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get after remove err = %v", err)
	}
	if err := lib.Remove(ctx, track.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
}
