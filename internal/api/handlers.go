package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"montage/internal/approval"
	"montage/internal/projects"
	"montage/internal/scheduler"
	"montage/internal/services"
	"montage/internal/store"
	"montage/internal/tracks"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, DaemonStatus{Running: true})
		return
	}
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.projects.Create(r.Context(), projects.CreateRequest{ID: req.ID, Name: req.Name})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromProject(project))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: FromProjects(list)})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.Get(r.Context(), mux.Vars(r)["project"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromProject(project))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	project, err := s.projects.Update(r.Context(), mux.Vars(r)["project"], projects.UpdateRequest{Name: req.Name, Status: req.Status})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromProject(project))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), mux.Vars(r)["project"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.projects.Videos(r.Context(), mux.Vars(r)["project"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VideoListResponse{Videos: FromVideos(videos)})
}

func (s *Server) handleRegisterTrack(w http.ResponseWriter, r *http.Request) {
	var req RegisterTrackRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	track, err := s.tracks.Register(r.Context(), mux.Vars(r)["project"], tracks.RegisterRequest{
		SourcePath:      req.SourcePath,
		Filename:        req.Filename,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromTrack(track))
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tracks.List(r.Context(), mux.Vars(r)["project"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TrackListResponse{Tracks: FromTracks(list)})
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	if err := s.tracks.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitComposition(w http.ResponseWriter, r *http.Request) {
	req := CompositionRequest{Settings: s.defaults}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	jobID, err := s.scheduler.Submit(r.Context(), scheduler.SubmitRequest{
		ProjectID: mux.Vars(r)["project"],
		TrackIDs:  req.TrackIDs,
		ImageIDs:  req.ImageIDs,
		Settings:  req.Settings,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CompositionResponse{JobID: jobID, Status: string(store.JobQueued)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []store.JobStatus
	for _, value := range queryValues(r, "status") {
		status, ok := store.ParseJobStatus(value)
		if !ok {
			s.writeError(w, r, invalidQuery("status", value))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.scheduler.List(r.Context(), mux.Vars(r)["project"], statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: FromJobs(jobs)})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromJob(status))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromJob(status))
}

func (s *Server) handleCreatePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	preview, err := s.approval.CreatePreview(r.Context(), mux.Vars(r)["project"], approval.PreviewRequest{
		Prompt:  req.Prompt,
		Service: req.Service,
		Params:  req.Params,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PreviewResponse{
		PreviewID:  preview.Image.ID,
		PreviewURL: preview.URL,
		Image:      FromImage(preview.Image, preview.URL),
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	image, err := s.approval.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromImage(image, s.approval.URL(image)))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.approval.Reject(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	image, err := s.approval.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromImage(image, ""))
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	var statuses []store.ImageStatus
	for _, value := range queryValues(r, "status") {
		status, ok := store.ParseImageStatus(value)
		if !ok {
			s.writeError(w, r, invalidQuery("status", value))
			return
		}
		statuses = append(statuses, status)
	}
	images, err := s.approval.List(r.Context(), mux.Vars(r)["project"], statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImageListResponse{Images: FromImages(images, s.approval)})
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	if err := s.approval.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.approval.CleanupOrphans(r.Context(), mux.Vars(r)["project"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromCleanupReport(report))
}

// queryValues returns the non-empty values of a query parameter, accepting
// both repeated and comma-separated forms.
func queryValues(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func invalidQuery(key, value string) error {
	return services.Wrap(services.ErrValidation, "api", "query", fmt.Sprintf("invalid %s %q", key, value), nil)
}
