package api

import "montage/internal/pipeline"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Project groups tracks, images and compositions.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Video is a finished composition.
type Video struct {
	JobID           string  `json:"job_id"`
	ProjectID       string  `json:"project_id"`
	FileRef         string  `json:"file_ref"`
	URL             string  `json:"url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Resolution      string  `json:"resolution,omitempty"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// Track is a registered audio file.
type Track struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	Filename        string  `json:"filename"`
	FileRef         string  `json:"file_ref"`
	DurationSeconds float64 `json:"duration_seconds"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// Image is a generated image in any approval state.
type Image struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	Prompt      string            `json:"prompt"`
	Service     string            `json:"service"`
	Params      map[string]string `json:"params,omitempty"`
	Status      string            `json:"status"`
	FileRef     string            `json:"file_ref,omitempty"`
	URL         string            `json:"url,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	ResolvedAt  string            `json:"resolved_at,omitempty"`
}

// Job is the polled state of a composition job.
type Job struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	Stage       string  `json:"stage,omitempty"`
	Message     string  `json:"message,omitempty"`
	ResultRef   string  `json:"result_ref,omitempty"`
	ResultURL   string  `json:"result_url,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	StartedAt   string  `json:"started_at,omitempty"`
	FinishedAt  string  `json:"finished_at,omitempty"`
	IsTerminal  bool    `json:"is_terminal"`
	ElapsedSecs float64 `json:"elapsed_seconds,omitempty"`
}

// RegisterTrackRequest registers an audio file readable by the daemon.
type RegisterTrackRequest struct {
	SourcePath      string  `json:"source_path"`
	Filename        string  `json:"filename,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// CompositionRequest submits a composition. Settings fields that are
// omitted keep the daemon's configured defaults.
type CompositionRequest struct {
	TrackIDs []string          `json:"track_ids"`
	ImageIDs []string          `json:"image_ids"`
	Settings pipeline.Settings `json:"settings"`
}

// CompositionResponse acknowledges a queued composition.
type CompositionResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// PreviewRequest asks the generator for a new preview image.
type PreviewRequest struct {
	Prompt  string            `json:"prompt"`
	Service string            `json:"service,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// PreviewResponse describes a generated preview.
type PreviewResponse struct {
	PreviewID  string `json:"preview_id"`
	PreviewURL string `json:"preview_url"`
	Image      Image  `json:"image"`
}

// CleanupResponse reports the outcome of an orphan cleanup pass.
type CleanupResponse struct {
	OrphanedRemoved int      `json:"orphaned_removed"`
	ValidRemaining  int      `json:"valid_remaining"`
	OrphanedDetails []string `json:"orphaned_details,omitempty"`
}

// CreateProjectRequest creates a project. An omitted id is generated.
type CreateProjectRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// UpdateProjectRequest renames a project or changes its status.
type UpdateProjectRequest struct {
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// ProjectListResponse wraps every project.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// VideoListResponse wraps a project's finished videos.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// TrackListResponse wraps a project's tracks.
type TrackListResponse struct {
	Tracks []Track `json:"tracks"`
}

// ImageListResponse wraps a project's images.
type ImageListResponse struct {
	Images []Image `json:"images"`
}

// JobListResponse wraps a project's jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is a preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// SchedulerStatus summarizes the worker pool.
type SchedulerStatus struct {
	Running   bool   `json:"running"`
	Workers   int    `json:"workers"`
	LastError string `json:"last_error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	DatabasePath   string             `json:"database_path"`
	LockFilePath   string             `json:"lock_file_path"`
	StorageBackend string             `json:"storage_backend"`
	Generator      string             `json:"generator"`
	Scheduler      SchedulerStatus    `json:"scheduler"`
	ProjectCount   int                `json:"project_count"`
	TrackCount     int                `json:"track_count"`
	ImageCounts    map[string]int     `json:"image_counts"`
	JobCounts      map[string]int     `json:"job_counts"`
	StagingDirs    int                `json:"staging_dirs"`
	StagingBytes   int64              `json:"staging_bytes"`
	Dependencies   []DependencyStatus `json:"dependencies"`
	Checks         []CheckResult      `json:"checks"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
