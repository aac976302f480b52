package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"montage/internal/services"
)

// Defaults are applied when a request does not override a parameter.
type Defaults struct {
	NegativePrompt string
	Steps          int
	Width          int
	Height         int
	GuidanceScale  float64
}

// StableDiffusion calls a Stable Diffusion HTTP service.
type StableDiffusion struct {
	baseURL    string
	defaults   Defaults
	httpClient *http.Client
}

var _ Generator = (*StableDiffusion)(nil)

// Option configures a StableDiffusion client.
type Option func(*StableDiffusion)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *StableDiffusion) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout. Generation on CPU hosts is slow.
func WithTimeout(timeout time.Duration) Option {
	return func(s *StableDiffusion) {
		if timeout > 0 {
			s.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewStableDiffusion creates a client for the service at baseURL.
func NewStableDiffusion(baseURL string, defaults Defaults, opts ...Option) *StableDiffusion {
	if defaults.Steps <= 0 {
		defaults.Steps = 30
	}
	if defaults.Width <= 0 {
		defaults.Width = 512
	}
	if defaults.Height <= 0 {
		defaults.Height = 512
	}
	if defaults.GuidanceScale <= 0 {
		defaults.GuidanceScale = 7.5
	}
	client := &StableDiffusion{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		defaults:   defaults,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	GuidanceScale  float64 `json:"guidance_scale"`
}

type generateResponse struct {
	Success     bool   `json:"success"`
	Filename    string `json:"filename"`
	Filepath    string `json:"filepath"`
	ImageBase64 string `json:"image_base64"`
	Prompt      string `json:"prompt"`
	Error       string `json:"error"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Generate posts the prompt to /generate and decodes the returned PNG.
func (s *StableDiffusion) Generate(ctx context.Context, req Request) (*Image, error) {
	payload, err := s.buildRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	requestStart := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "generator", "stable diffusion",
			fmt.Sprintf("request failed (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "generator", "stable diffusion", "read response", err)
	}
	var decoded generateResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("service returned %d", resp.StatusCode)
		if decodeErr == nil && decoded.Error != "" {
			message += ": " + decoded.Error
		}
		return nil, services.Wrap(services.ErrExternalService, "generator", "stable diffusion", message, nil)
	}
	if decodeErr != nil {
		return nil, services.Wrap(services.ErrExternalService, "generator", "stable diffusion", "decode response", decodeErr)
	}
	if !decoded.Success {
		reason := decoded.Error
		if reason == "" {
			reason = "unknown error"
		}
		return nil, services.Wrap(services.ErrExternalService, "generator", "stable diffusion", "generation failed: "+reason, nil)
	}
	data, err := base64.StdEncoding.DecodeString(decoded.ImageBase64)
	if err != nil || len(data) == 0 {
		return nil, services.Wrap(services.ErrExternalService, "generator", "stable diffusion", "response carried no image data", err)
	}
	return &Image{
		Data:        data,
		ContentType: http.DetectContentType(data),
		Service:     ServiceStableDiffusion,
	}, nil
}

// Health reports whether the service is up with its model loaded.
func (s *StableDiffusion) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "generator", "health", "stable diffusion unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternalService, "generator", "health", fmt.Sprintf("stable diffusion returned %d", resp.StatusCode), nil)
	}
	var payload healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return services.Wrap(services.ErrExternalService, "generator", "health", "decode health response", err)
	}
	if !payload.ModelLoaded {
		return services.Wrap(services.ErrExternalService, "generator", "health", "stable diffusion model still loading", nil)
	}
	return nil
}

func (s *StableDiffusion) buildRequest(req Request) (generateRequest, error) {
	params := req.Params
	steps, err := intParam(params, "steps", s.defaults.Steps, 1, 150)
	if err != nil {
		return generateRequest{}, err
	}
	width, err := intParam(params, "width", s.defaults.Width, 64, 2048)
	if err != nil {
		return generateRequest{}, err
	}
	height, err := intParam(params, "height", s.defaults.Height, 64, 2048)
	if err != nil {
		return generateRequest{}, err
	}
	guidance, err := floatParam(params, "guidance_scale", s.defaults.GuidanceScale, 0, 50)
	if err != nil {
		return generateRequest{}, err
	}
	negative := s.defaults.NegativePrompt
	if value, ok := params["negative_prompt"]; ok {
		negative = value
	}
	return generateRequest{
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: negative,
		Steps:          steps,
		Width:          width,
		Height:         height,
		GuidanceScale:  guidance,
	}, nil
}
