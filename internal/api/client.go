package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"montage/internal/services"
)

// APIError is a non-2xx response decoded by the client.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap maps the response kind back to the services marker so callers can
// use errors.Is(err, services.ErrConflict) and friends.
func (e *APIError) Unwrap() error {
	switch services.Kind(e.Kind) {
	case services.KindValidation:
		return services.ErrValidation
	case services.KindNotFound:
		return services.ErrNotFound
	case services.KindConflict:
		return services.ErrConflict
	case services.KindExternalService:
		return services.ErrExternalService
	case services.KindRender:
		return services.ErrRender
	case services.KindResource:
		return services.ErrResource
	case services.KindCancelled:
		return services.ErrCancelled
	}
	return nil
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient constructs a client for baseURL. A bare host:port is treated as
// an http address.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateProject creates a draft project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	var resp Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProjects lists every project.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp ProjectListResponse
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var resp Project
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProject renames a project or changes its status.
func (c *Client) UpdateProject(ctx context.Context, id string, req UpdateProjectRequest) (*Project, error) {
	var resp Project
	if err := c.do(ctx, http.MethodPut, "/api/projects/"+url.PathEscape(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteProject removes a project with everything it owns.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

// ListVideos lists a project's finished videos.
func (c *Client) ListVideos(ctx context.Context, project string) ([]Video, error) {
	var resp VideoListResponse
	if err := c.do(ctx, http.MethodGet, projectPath(project, "videos"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Videos, nil
}

// RegisterTrack registers an audio file for a project.
func (c *Client) RegisterTrack(ctx context.Context, project string, req RegisterTrackRequest) (*Track, error) {
	var resp Track
	if err := c.do(ctx, http.MethodPost, projectPath(project, "tracks"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTracks lists a project's tracks.
func (c *Client) ListTracks(ctx context.Context, project string) ([]Track, error) {
	var resp TrackListResponse
	if err := c.do(ctx, http.MethodGet, projectPath(project, "tracks"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// RemoveTrack deletes a track.
func (c *Client) RemoveTrack(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tracks/"+url.PathEscape(id), nil, nil)
}

// SubmitComposition queues a composition job.
func (c *Client) SubmitComposition(ctx context.Context, project string, req CompositionRequest) (*CompositionResponse, error) {
	var resp CompositionResponse
	if err := c.do(ctx, http.MethodPost, projectPath(project, "compositions"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitCompositionRaw queues a composition from a pre-encoded JSON body so
// settings left out of the body keep the daemon defaults.
func (c *Client) SubmitCompositionRaw(ctx context.Context, project string, body json.RawMessage) (*CompositionResponse, error) {
	var resp CompositionResponse
	if err := c.do(ctx, http.MethodPost, projectPath(project, "compositions"), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs lists a project's jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, project string, statuses ...string) ([]Job, error) {
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, withStatus(projectPath(project, "jobs"), statuses), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Job fetches the state of one job.
func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelJob requests cancellation of a job.
func (c *Client) CancelJob(ctx context.Context, id string) (*Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreatePreview generates a preview image.
func (c *Client) CreatePreview(ctx context.Context, project string, req PreviewRequest) (*PreviewResponse, error) {
	var resp PreviewResponse
	if err := c.do(ctx, http.MethodPost, projectPath(project, "previews"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Approve promotes a preview to an approved image.
func (c *Client) Approve(ctx context.Context, id string) (*Image, error) {
	var resp Image
	if err := c.do(ctx, http.MethodPost, "/api/previews/"+url.PathEscape(id)+"/approve", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reject discards a preview.
func (c *Client) Reject(ctx context.Context, id string) (*Image, error) {
	var resp Image
	if err := c.do(ctx, http.MethodPost, "/api/previews/"+url.PathEscape(id)+"/reject", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListImages lists a project's images, optionally filtered by status.
func (c *Client) ListImages(ctx context.Context, project string, statuses ...string) ([]Image, error) {
	var resp ImageListResponse
	if err := c.do(ctx, http.MethodGet, withStatus(projectPath(project, "images"), statuses), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// RemoveImage deletes an approved image.
func (c *Client) RemoveImage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/images/"+url.PathEscape(id), nil, nil)
}

// CleanupImages removes approved records whose files are gone.
func (c *Client) CleanupImages(ctx context.Context, project string) (*CleanupResponse, error) {
	var resp CleanupResponse
	if err := c.do(ctx, http.MethodPost, projectPath(project, "images/cleanup"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return errors.New("daemon address not configured")
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err == nil {
			apiErr.Kind = payload.Kind
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func projectPath(project, suffix string) string {
	return "/api/projects/" + url.PathEscape(project) + "/" + suffix
}

func withStatus(path string, statuses []string) string {
	if len(statuses) == 0 {
		return path
	}
	q := url.Values{}
	for _, status := range statuses {
		q.Add("status", status)
	}
	return path + "?" + q.Encode()
}
