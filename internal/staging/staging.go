// Package staging manages per-job work directories under the staging root.
//
// Each running composition owns staging/job-<id>/ with images/ for fetched
// inputs, audio/ for fetched tracks and clips/ for rendered slices. The
// directory is removed when the job reaches a terminal state; CleanStale and
// CleanOrphaned reclaim directories left by crashes.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const jobDirPrefix = "job-"

// Workspace is the set of directories one job writes to.
type Workspace struct {
	Root   string
	Images string
	Audio  string
	Clips  string
}

// JobDir returns the work directory for jobID.
func JobDir(stagingDir, jobID string) string {
	return filepath.Join(stagingDir, jobDirPrefix+jobID)
}

// JobIDFromDir extracts the job id from a work directory name.
func JobIDFromDir(name string) (string, bool) {
	if !strings.HasPrefix(name, jobDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, jobDirPrefix)
	return id, id != ""
}

// Prepare creates a fresh workspace for jobID, discarding leftovers from a
// previous attempt.
func Prepare(stagingDir, jobID string) (Workspace, error) {
	if strings.TrimSpace(stagingDir) == "" {
		return Workspace{}, errors.New("staging dir not configured")
	}
	if strings.TrimSpace(jobID) == "" {
		return Workspace{}, errors.New("job id required")
	}
	root := JobDir(stagingDir, jobID)
	if err := os.RemoveAll(root); err != nil {
		return Workspace{}, fmt.Errorf("reset work dir: %w", err)
	}
	ws := Workspace{
		Root:   root,
		Images: filepath.Join(root, "images"),
		Audio:  filepath.Join(root, "audio"),
		Clips:  filepath.Join(root, "clips"),
	}
	for _, dir := range []string{ws.Images, ws.Audio, ws.Clips} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Workspace{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return ws, nil
}

// Remove deletes the job's work directory. A missing directory is not an error.
func Remove(stagingDir, jobID string) error {
	if strings.TrimSpace(stagingDir) == "" || strings.TrimSpace(jobID) == "" {
		return nil
	}
	return os.RemoveAll(JobDir(stagingDir, jobID))
}
