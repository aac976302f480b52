package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"montage/internal/logging"
	"montage/internal/testsupport"
)

func makeJobDir(t *testing.T, root, jobID string, age time.Duration) string {
	t.Helper()
	dir := JobDir(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if age > 0 {
		when := time.Now().Add(-age)
		if err := os.Chtimes(dir, when, when); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	return dir
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldJobDirectories(t *testing.T) {
	root := t.TempDir()
	old := makeJobDir(t, root, "old", 2*time.Hour)
	recent := makeJobDir(t, root, "recent", 0)
	running := makeJobDir(t, root, "running", 3*time.Hour)
	unrelated := filepath.Join(root, "keep-me")
	if err := os.Mkdir(unrelated, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	when := time.Now().Add(-5 * time.Hour)
	_ = os.Chtimes(unrelated, when, when)

	active := map[string]struct{}{"running": {}}
	result := CleanStale(context.Background(), root, time.Hour, active, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("removed = %v, want [%s]", result.Removed, old)
	}
	for _, dir := range []string{recent, running, unrelated} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("%s should survive: %v", dir, err)
		}
	}
}

func TestCleanOrphanedKeepsActiveJobs(t *testing.T) {
	root := t.TempDir()
	orphan := makeJobDir(t, root, "gone", 0)
	live := makeJobDir(t, root, "live", 0)

	result := CleanOrphaned(context.Background(), root, map[string]struct{}{"live": {}}, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != orphan {
		t.Fatalf("removed = %v", result.Removed)
	}
	if _, err := os.Stat(live); err != nil {
		t.Fatalf("active dir removed: %v", err)
	}
}

func TestPrepareResetsWorkspace(t *testing.T) {
	root := t.TempDir()
	ws, err := Prepare(root, "abc")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	leftover := filepath.Join(ws.Clips, "stale.mp4")
	testsupport.WriteFile(t, leftover, 10)

	ws, err = Prepare(root, "abc")
	if err != nil {
		t.Fatalf("Prepare again: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatal("leftover clip survived Prepare")
	}
	for _, dir := range []string{ws.Images, ws.Audio, ws.Clips} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("%s missing: %v", dir, err)
		}
	}

	if err := Remove(root, "abc"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(ws.Root); !os.IsNotExist(err) {
		t.Fatal("workspace not removed")
	}
	if err := Remove(root, "abc"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if _, err := Prepare("", "abc"); err == nil {
		t.Fatal("expected error without staging dir")
	}
}

func TestListDirectoriesReportsSize(t *testing.T) {
	root := t.TempDir()
	dir := makeJobDir(t, root, "sized", 0)
	testsupport.WriteFile(t, filepath.Join(dir, "clips", "0.mp4"), 1500)

	dirs, err := ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 || dirs[0].JobID != "sized" || dirs[0].Size != 1500 {
		t.Fatalf("dirs = %+v", dirs)
	}
}

func TestJobIDFromDir(t *testing.T) {
	if id, ok := JobIDFromDir("job-123"); !ok || id != "123" {
		t.Fatalf("JobIDFromDir = %q, %v", id, ok)
	}
	for _, name := range []string{"job-", "queue-1", "other"} {
		if _, ok := JobIDFromDir(name); ok {
			t.Fatalf("%q should not parse", name)
		}
	}
}
