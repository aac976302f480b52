package store

import "time"

// ImageStatus represents the approval lifecycle of a generated image.
type ImageStatus string

const (
	ImagePreview  ImageStatus = "preview"
	ImageApproved ImageStatus = "approved"
	ImageRejected ImageStatus = "rejected"
)

// JobStatus represents the lifecycle of a composition job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// DaemonStopReason is the error message set when running jobs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

// IsTerminal reports whether the job has reached a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IsActive reports whether the job occupies the project's single active slot.
func (s JobStatus) IsActive() bool {
	return s == JobQueued || s == JobRunning
}

// ParseJobStatus validates a status string.
func ParseJobStatus(value string) (JobStatus, bool) {
	status := JobStatus(value)
	switch status {
	case JobQueued, JobRunning, JobSucceeded, JobFailed, JobCancelled:
		return status, true
	}
	return "", false
}

// ParseImageStatus validates a status string.
func ParseImageStatus(value string) (ImageStatus, bool) {
	status := ImageStatus(value)
	switch status {
	case ImagePreview, ImageApproved, ImageRejected:
		return status, true
	}
	return "", false
}

// ProjectStatus is the user-managed lifecycle label of a project.
type ProjectStatus string

const (
	ProjectDraft    ProjectStatus = "draft"
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// ParseProjectStatus validates a status string.
func ParseProjectStatus(value string) (ProjectStatus, bool) {
	status := ProjectStatus(value)
	switch status {
	case ProjectDraft, ProjectActive, ProjectArchived:
		return status, true
	}
	return "", false
}

// Project owns tracks, images and jobs. Deleting a project removes all of
// them.
type Project struct {
	ID        string
	Name      string
	Status    ProjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Track is a registered audio file belonging to a project.
type Track struct {
	ID              string
	ProjectID       string
	Filename        string
	FileRef         string
	DurationSeconds float64
	CreatedAt       time.Time
}

// Image is a generated image record. Rejected images keep their row as a
// tombstone with an empty FileRef.
type Image struct {
	ID          string
	ProjectID   string
	Prompt      string
	Service     string
	Params      map[string]string
	Status      ImageStatus
	FileRef     string
	ContentType string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Job is a persisted composition job. Settings, timeline and plan are stored
// as opaque JSON documents owned by the pipeline.
type Job struct {
	ID              string
	ProjectID       string
	Status          JobStatus
	Progress        float64
	Stage           string
	Message         string
	SettingsJSON    string
	TrackIDs        []string
	ImageIDs        []string
	TimelineJSON    string
	PlanJSON        string
	ResultRef       string
	OutputSeconds   float64
	OutputBytes     int64
	ErrorKind       string
	ErrorMessage    string
	CancelRequested bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	UpdatedAt       time.Time
}

// Stats aggregates record counts for status output.
type Stats struct {
	Projects int
	Tracks   int
	Images map[ImageStatus]int
	Jobs   map[JobStatus]int
}
