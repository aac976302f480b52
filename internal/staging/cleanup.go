package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"montage/internal/logging"
)

// SweepResult reports what a staging sweep removed and what it could not.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a work directory with the error that kept it on disk.
type SweepError struct {
	Path string
	Err  error
}

// jobEntry is one job-<id> directory found under the staging root.
type jobEntry struct {
	id   string
	path string
	mod  time.Time
}

// jobEntries lists the job work directories under root. Other entries are
// ignored. A missing root yields no entries and no error.
func jobEntries(root string) ([]jobEntry, []SweepError, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil, nil
	}
	listing, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var (
		found    []jobEntry
		problems []SweepError
	)
	for _, item := range listing {
		if !item.IsDir() {
			continue
		}
		id, ok := JobIDFromDir(item.Name())
		if !ok {
			continue
		}
		full := filepath.Join(root, item.Name())
		info, err := item.Info()
		if err != nil {
			problems = append(problems, SweepError{Path: full, Err: err})
			continue
		}
		found = append(found, jobEntry{id: id, path: full, mod: info.ModTime()})
	}
	return found, problems, nil
}

// CleanStale removes work directories untouched for longer than maxAge.
// Directories belonging to ids in active are never removed.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, active map[string]struct{}, logger *slog.Logger) SweepResult {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, stagingDir, logger, "stale", func(e jobEntry) bool {
		if _, busy := active[e.id]; busy {
			return false
		}
		return e.mod.Before(cutoff)
	})
}

// CleanOrphaned removes every work directory whose job is not in active.
func CleanOrphaned(ctx context.Context, stagingDir string, active map[string]struct{}, logger *slog.Logger) SweepResult {
	return sweep(ctx, stagingDir, logger, "orphaned", func(e jobEntry) bool {
		_, busy := active[e.id]
		return !busy
	})
}

func sweep(ctx context.Context, stagingDir string, logger *slog.Logger, reason string, doomed func(jobEntry) bool) SweepResult {
	var result SweepResult
	found, problems, err := jobEntries(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, SweepError{Path: stagingDir, Err: err})
		return result
	}
	result.Errors = append(result.Errors, problems...)

	if logger == nil {
		logger = logging.NewNop()
	}
	for _, e := range found {
		if ctx.Err() != nil {
			break
		}
		if !doomed(e) {
			continue
		}
		if err := os.RemoveAll(e.path); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: e.path, Err: err})
			continue
		}
		result.Removed = append(result.Removed, e.path)
		logger.Info("removed "+reason+" work directory",
			logging.String(logging.FieldJobID, e.id),
			logging.String("path", e.path),
			logging.Duration("idle", time.Since(e.mod)),
			logging.String(logging.FieldEventType, "staging_swept"),
		)
	}
	return result
}

// DirInfo describes one job work directory on disk.
type DirInfo struct {
	JobID   string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories reports every job work directory under stagingDir along
// with the bytes it holds.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	found, _, err := jobEntries(stagingDir)
	if err != nil {
		return nil, err
	}
	out := make([]DirInfo, 0, len(found))
	for _, e := range found {
		out = append(out, DirInfo{JobID: e.id, Path: e.path, ModTime: e.mod, Size: treeBytes(e.path)})
	}
	return out, nil
}

// treeBytes sums regular file sizes below root. Unreadable entries count as
// zero.
func treeBytes(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, statErr := d.Info(); statErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
