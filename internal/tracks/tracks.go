// Package tracks manages the audio files registered for each project.
package tracks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"montage/internal/assets"
	"montage/internal/logging"
	"montage/internal/media/ffprobe"
	"montage/internal/services"
	"montage/internal/store"
	"montage/internal/textutil"
)

// DurationProber reports the playable length of a local audio file.
type DurationProber func(ctx context.Context, path string) (float64, error)

// FFprobe returns a prober backed by the given ffprobe binary.
func FFprobe(binary string) DurationProber {
	return func(ctx context.Context, path string) (float64, error) {
		return ffprobe.AudioDuration(ctx, binary, path)
	}
}

// RegisterRequest describes an audio file to add to a project.
type RegisterRequest struct {
	// SourcePath is a file readable by the daemon.
	SourcePath string
	// Filename overrides the display name; defaults to the source base name.
	Filename string
	// DurationSeconds skips probing when positive.
	DurationSeconds float64
}

// Library stores audio files and their records.
type Library struct {
	store  *store.Store
	assets assets.Store
	probe  DurationProber
	logger *slog.Logger
}

// New creates a track library.
func New(st *store.Store, assetStore assets.Store, probe DurationProber, logger *slog.Logger) *Library {
	return &Library{
		store:  st,
		assets: assetStore,
		probe:  probe,
		logger: logging.NewComponentLogger(logger, "tracks"),
	}
}

// Register copies the source file into project storage and records it.
func (l *Library) Register(ctx context.Context, projectID string, req RegisterRequest) (*store.Track, error) {
	if !textutil.ValidID(projectID) {
		return nil, services.Wrap(services.ErrValidation, "tracks", "register", fmt.Sprintf("invalid project id %q", projectID), nil)
	}
	source := strings.TrimSpace(req.SourcePath)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, "tracks", "register", "source path is required", nil)
	}
	project, err := l.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "tracks", "register", "load project", err)
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "tracks", "register", fmt.Sprintf("project %s not found", projectID), nil)
	}
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrValidation, "tracks", "register", fmt.Sprintf("source %s does not exist", source), nil)
		}
		return nil, services.Wrap(services.ErrResource, "tracks", "register", "stat source", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "tracks", "register", fmt.Sprintf("source %s is a directory", source), nil)
	}

	filename := textutil.SanitizeFileName(req.Filename)
	if strings.TrimSpace(req.Filename) == "" {
		filename = textutil.SanitizeFileName(filepath.Base(source))
	}

	duration := req.DurationSeconds
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return nil, services.Wrap(services.ErrValidation, "tracks", "register", "duration must be a positive number", nil)
	}
	if duration == 0 {
		if l.probe == nil {
			return nil, services.Wrap(services.ErrValidation, "tracks", "register", "duration is required when probing is unavailable", nil)
		}
		duration, err = l.probe(ctx, source)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "tracks", "register", "probe duration", err)
		}
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(source))
	key := assets.AudioKey(projectID, id, ext)
	if err := l.assets.PutFile(ctx, key, source, assets.ContentTypeForExt(ext)); err != nil {
		return nil, services.Wrap(services.ErrResource, "tracks", "register", "store audio", err)
	}

	track := &store.Track{
		ID:              id,
		ProjectID:       projectID,
		Filename:        filename,
		FileRef:         key,
		DurationSeconds: duration,
	}
	if err := l.store.InsertTrack(ctx, track); err != nil {
		_ = l.assets.Delete(ctx, key)
		return nil, services.Wrap(services.ErrResource, "tracks", "register", "record track", err)
	}

	l.logger.Info("track registered",
		logging.String(logging.FieldProjectID, projectID),
		logging.String(logging.FieldTrackID, id),
		logging.String("filename", filename),
		logging.Float64("duration_seconds", duration),
	)
	return track, nil
}

// Get returns a track or ErrNotFound.
func (l *Library) Get(ctx context.Context, id string) (*store.Track, error) {
	track, err := l.store.GetTrack(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "tracks", "get", id, err)
	}
	if track == nil {
		return nil, services.Wrap(services.ErrNotFound, "tracks", "get", fmt.Sprintf("track %s", id), nil)
	}
	return track, nil
}

// List returns the project's tracks in registration order.
func (l *Library) List(ctx context.Context, projectID string) ([]*store.Track, error) {
	tracks, err := l.store.ListTracks(ctx, projectID)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "tracks", "list", projectID, err)
	}
	return tracks, nil
}

// Remove deletes a track's file and record. Jobs that already snapshotted
// the track keep their snapshot.
func (l *Library) Remove(ctx context.Context, id string) error {
	track, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := l.assets.Delete(ctx, track.FileRef); err != nil {
		return services.Wrap(services.ErrResource, "tracks", "remove", "delete audio", err)
	}
	if _, err := l.store.DeleteTrack(ctx, id); err != nil {
		return services.Wrap(services.ErrResource, "tracks", "remove", "delete record", err)
	}
	l.logger.Info("track removed",
		logging.String(logging.FieldProjectID, track.ProjectID),
		logging.String(logging.FieldTrackID, id),
	)
	return nil
}
