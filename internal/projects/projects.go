// Package projects manages composition projects and lists the videos they
// have produced.
//
// Every track, image and job belongs to a project. Deleting a project
// removes those records and then their files from the asset store; a file
// that cannot be deleted is logged and left behind rather than failing the
// request, since its record is already gone.
package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"montage/internal/assets"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/services"
	"montage/internal/store"
	"montage/internal/textutil"
	"montage/internal/timeline"
)

const maxNameLength = 200

// CreateRequest describes a new project. An empty ID is generated.
type CreateRequest struct {
	ID   string
	Name string
}

// UpdateRequest changes a project. Empty fields are left as they are.
type UpdateRequest struct {
	Name   string
	Status string
}

// Video is a finished composition.
type Video struct {
	JobID           string
	ProjectID       string
	Ref             string
	URL             string
	DurationSeconds float64
	Resolution      string
	SizeBytes       int64
	CreatedAt       time.Time
}

// Catalog owns project records.
type Catalog struct {
	store  *store.Store
	assets assets.Store
	logger *slog.Logger
}

// New creates a project catalog.
func New(st *store.Store, assetStore assets.Store, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  st,
		assets: assetStore,
		logger: logging.NewComponentLogger(logger, "projects"),
	}
}

// Create records a draft project.
func (c *Catalog) Create(ctx context.Context, req CreateRequest) (*store.Project, error) {
	id := strings.TrimSpace(req.ID)
	if id != "" && !textutil.ValidID(id) {
		return nil, services.Wrap(services.ErrValidation, "projects", "create", fmt.Sprintf("invalid project id %q", req.ID), nil)
	}
	name, err := cleanName(req.Name)
	if err != nil {
		return nil, err
	}
	project := &store.Project{ID: id, Name: name}
	if err := c.store.InsertProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrProjectExists) {
			return nil, services.Wrap(services.ErrConflict, "projects", "create", fmt.Sprintf("project %s already exists", id), nil)
		}
		return nil, services.Wrap(services.ErrResource, "projects", "create", "record project", err)
	}
	c.logger.Info("project created",
		logging.String(logging.FieldProjectID, project.ID),
		logging.String("name", project.Name),
	)
	return project, nil
}

// Get returns a project or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*store.Project, error) {
	project, err := c.store.GetProject(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "projects", "get", id, err)
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "projects", "get", fmt.Sprintf("project %s not found", id), nil)
	}
	return project, nil
}

// List returns every project, oldest first.
func (c *Catalog) List(ctx context.Context) ([]*store.Project, error) {
	list, err := c.store.ListProjects(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "projects", "list", "list projects", err)
	}
	return list, nil
}

// Update renames a project or changes its status.
func (c *Catalog) Update(ctx context.Context, id string, req UpdateRequest) (*store.Project, error) {
	var name string
	if strings.TrimSpace(req.Name) != "" {
		cleaned, err := cleanName(req.Name)
		if err != nil {
			return nil, err
		}
		name = cleaned
	}
	var status store.ProjectStatus
	if raw := strings.TrimSpace(req.Status); raw != "" {
		parsed, ok := store.ParseProjectStatus(strings.ToLower(raw))
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "projects", "update", fmt.Sprintf("invalid project status %q", req.Status), nil)
		}
		status = parsed
	}
	project, err := c.store.UpdateProject(ctx, id, name, status)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "projects", "update", id, err)
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "projects", "update", fmt.Sprintf("project %s not found", id), nil)
	}
	c.logger.Info("project updated",
		logging.String(logging.FieldProjectID, id),
		logging.String("name", project.Name),
		logging.String("status", string(project.Status)),
	)
	return project, nil
}

// Delete removes a project with its tracks, images, jobs and files. A
// project with a queued or running job cannot be deleted.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	refs, found, err := c.store.DeleteProject(ctx, id)
	if errors.Is(err, store.ErrActiveJobExists) {
		return services.Wrap(services.ErrConflict, "projects", "delete", fmt.Sprintf("project %s has an active composition job", id), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrResource, "projects", "delete", id, err)
	}
	if !found {
		return services.Wrap(services.ErrNotFound, "projects", "delete", fmt.Sprintf("project %s not found", id), nil)
	}

	failed := 0
	for _, ref := range refs {
		if err := c.assets.Delete(ctx, ref); err != nil {
			failed++
			c.logger.Warn("failed to delete project file",
				logging.String(logging.FieldProjectID, id),
				logging.String("key", ref),
				logging.Error(err),
				logging.String(logging.FieldEventType, "project_file_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "delete the file from the asset store manually"),
				logging.String(logging.FieldImpact, "unreferenced file remains in storage"),
			)
		}
	}
	c.logger.Info("project deleted",
		logging.String(logging.FieldProjectID, id),
		logging.Int("files", len(refs)-failed),
		logging.Int("files_left", failed),
		logging.String(logging.FieldEventType, "project_deleted"),
	)
	return nil
}

// Videos lists the project's finished compositions, newest first.
func (c *Catalog) Videos(ctx context.Context, id string) ([]Video, error) {
	if _, err := c.Get(ctx, id); err != nil {
		return nil, err
	}
	jobs, err := c.store.ListJobs(ctx, id, store.JobSucceeded)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "projects", "videos", "list jobs", err)
	}
	videos := make([]Video, 0, len(jobs))
	for _, job := range jobs {
		if job.ResultRef == "" {
			continue
		}
		video := Video{
			JobID:           job.ID,
			ProjectID:       job.ProjectID,
			Ref:             job.ResultRef,
			URL:             c.assets.URL(job.ResultRef),
			DurationSeconds: job.OutputSeconds,
			SizeBytes:       job.OutputBytes,
			CreatedAt:       job.CreatedAt,
		}
		if job.FinishedAt != nil {
			video.CreatedAt = *job.FinishedAt
		}
		if settings, err := pipeline.DecodeSettings(job.SettingsJSON); err == nil {
			video.Resolution = settings.Resolution
		}
		if video.DurationSeconds <= 0 {
			video.DurationSeconds = plannedDuration(job.TimelineJSON)
		}
		videos = append(videos, video)
	}
	return videos, nil
}

// plannedDuration reads the total from a job's timeline snapshot.
func plannedDuration(raw string) float64 {
	if raw == "" {
		return 0
	}
	var tl timeline.Timeline
	if err := json.Unmarshal([]byte(raw), &tl); err != nil {
		return 0
	}
	return tl.TotalDuration
}

func cleanName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "projects", "name", "project name is required", nil)
	}
	if len(name) > maxNameLength {
		return "", services.Wrap(services.ErrValidation, "projects", "name", fmt.Sprintf("project name exceeds %d characters", maxNameLength), nil)
	}
	return name, nil
}
