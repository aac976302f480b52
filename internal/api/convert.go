package api

import (
	"time"

	"montage/internal/approval"
	"montage/internal/projects"
	"montage/internal/scheduler"
	"montage/internal/store"
)

// FromProject converts a project record.
func FromProject(project *store.Project) Project {
	if project == nil {
		return Project{}
	}
	return Project{
		ID:        project.ID,
		Name:      project.Name,
		Status:    string(project.Status),
		CreatedAt: formatTime(project.CreatedAt),
		UpdatedAt: formatTime(project.UpdatedAt),
	}
}

// FromProjects converts a slice of project records.
func FromProjects(list []*store.Project) []Project {
	out := make([]Project, 0, len(list))
	for _, project := range list {
		if project != nil {
			out = append(out, FromProject(project))
		}
	}
	return out
}

// FromVideos converts finished compositions.
func FromVideos(videos []projects.Video) []Video {
	out := make([]Video, 0, len(videos))
	for _, video := range videos {
		out = append(out, Video{
			JobID:           video.JobID,
			ProjectID:       video.ProjectID,
			FileRef:         video.Ref,
			URL:             video.URL,
			DurationSeconds: video.DurationSeconds,
			Resolution:      video.Resolution,
			SizeBytes:       video.SizeBytes,
			CreatedAt:       formatTime(video.CreatedAt),
		})
	}
	return out
}

// FromTrack converts a track record into its API representation.
func FromTrack(track *store.Track) Track {
	if track == nil {
		return Track{}
	}
	return Track{
		ID:              track.ID,
		ProjectID:       track.ProjectID,
		Filename:        track.Filename,
		FileRef:         track.FileRef,
		DurationSeconds: track.DurationSeconds,
		CreatedAt:       formatTime(track.CreatedAt),
	}
}

// FromTracks converts a slice of track records.
func FromTracks(tracks []*store.Track) []Track {
	out := make([]Track, 0, len(tracks))
	for _, track := range tracks {
		if track != nil {
			out = append(out, FromTrack(track))
		}
	}
	return out
}

// FromImage converts an image record. url is the client-facing location of
// the image file and is empty for rejected tombstones.
func FromImage(image *store.Image, url string) Image {
	if image == nil {
		return Image{}
	}
	dto := Image{
		ID:          image.ID,
		ProjectID:   image.ProjectID,
		Prompt:      image.Prompt,
		Service:     image.Service,
		Params:      image.Params,
		Status:      string(image.Status),
		FileRef:     image.FileRef,
		URL:         url,
		ContentType: image.ContentType,
		CreatedAt:   formatTime(image.CreatedAt),
	}
	if image.ResolvedAt != nil {
		dto.ResolvedAt = formatTime(*image.ResolvedAt)
	}
	return dto
}

// FromImages converts image records using the registry to resolve URLs.
func FromImages(images []*store.Image, registry *approval.Registry) []Image {
	out := make([]Image, 0, len(images))
	for _, image := range images {
		if image == nil {
			continue
		}
		out = append(out, FromImage(image, registry.URL(image)))
	}
	return out
}

// FromJob converts a scheduler status into its API representation.
func FromJob(status scheduler.JobStatus) Job {
	dto := Job{
		ID:         status.ID,
		ProjectID:  status.ProjectID,
		Status:     string(status.Status),
		Progress:   status.Progress,
		Stage:      status.Stage,
		Message:    status.Message,
		CreatedAt:  formatTime(status.CreatedAt),
		IsTerminal: status.Status.IsTerminal(),
	}
	if status.Result != nil {
		dto.ResultRef = status.Result.Ref
		dto.ResultURL = status.Result.URL
	}
	if status.Error != nil {
		dto.ErrorKind = status.Error.Kind
		dto.Error = status.Error.Message
	}
	if status.StartedAt != nil {
		dto.StartedAt = formatTime(*status.StartedAt)
		end := time.Now()
		if status.FinishedAt != nil {
			end = *status.FinishedAt
		}
		dto.ElapsedSecs = end.Sub(*status.StartedAt).Seconds()
	}
	if status.FinishedAt != nil {
		dto.FinishedAt = formatTime(*status.FinishedAt)
	}
	return dto
}

// FromJobs converts a slice of scheduler statuses.
func FromJobs(statuses []scheduler.JobStatus) []Job {
	out := make([]Job, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, FromJob(status))
	}
	return out
}

// FromCleanupReport converts an approval cleanup report.
func FromCleanupReport(report approval.CleanupReport) CleanupResponse {
	return CleanupResponse{
		OrphanedRemoved: report.OrphanedRemoved,
		ValidRemaining:  report.ValidRemaining,
		OrphanedDetails: report.OrphanedDetails,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
