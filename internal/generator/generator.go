package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"montage/internal/config"
	"montage/internal/services"
)

// Service names accepted in preview requests.
const (
	ServiceStableDiffusion = "stable_diffusion"
	ServiceDalle           = "dalle"
	ServiceMidjourney      = "midjourney"
)

// Request describes one image generation call.
type Request struct {
	Prompt  string
	Service string
	Params  map[string]string
}

// Image is the generated payload.
type Image struct {
	Data        []byte
	ContentType string
	Service     string
}

// Generator produces image bytes for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}

// NormalizeService lowercases the service name and applies the default.
func NormalizeService(service string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(service))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "":
		return ServiceStableDiffusion, nil
	case ServiceStableDiffusion, ServiceDalle, ServiceMidjourney:
		return normalized, nil
	}
	return "", services.Wrap(services.ErrValidation, "generator", "service", fmt.Sprintf("unknown image service %q", service), nil)
}

// Router dispatches requests to the backend registered for each service.
type Router struct {
	backends map[string]Generator
	fallback Generator
}

// NewRouter creates a router that uses fallback for unregistered services.
func NewRouter(fallback Generator) *Router {
	return &Router{backends: make(map[string]Generator), fallback: fallback}
}

// Register binds a backend to a service name.
func (r *Router) Register(service string, backend Generator) {
	r.backends[service] = backend
}

// Generate validates the request and forwards it to the matching backend.
func (r *Router) Generate(ctx context.Context, req Request) (*Image, error) {
	service, err := NormalizeService(req.Service)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, "generator", "prompt", "prompt is required", nil)
	}
	req.Service = service
	backend, ok := r.backends[service]
	if !ok {
		backend = r.fallback
	}
	if backend == nil {
		return nil, services.Wrap(services.ErrExternalService, "generator", "dispatch", fmt.Sprintf("no backend for %s", service), nil)
	}
	img, err := backend.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if img.Service == "" {
		img.Service = service
	}
	return img, nil
}

// New builds the router for the configured generator section.
func New(cfg *config.Config) *Router {
	placeholder := NewPlaceholder(cfg.Generator.Width, cfg.Generator.Height)
	router := NewRouter(placeholder)
	if endpoint := strings.TrimSpace(cfg.Generator.StableDiffusionURL); endpoint != "" {
		router.Register(ServiceStableDiffusion, NewStableDiffusion(endpoint, Defaults{
			NegativePrompt: cfg.Generator.NegativePrompt,
			Steps:          cfg.Generator.Steps,
			Width:          cfg.Generator.Width,
			Height:         cfg.Generator.Height,
			GuidanceScale:  cfg.Generator.GuidanceScale,
		}, WithTimeout(cfg.GeneratorTimeout())))
	}
	return router
}

func intParam(params map[string]string, key string, fallback, lo, hi int) (int, error) {
	raw, ok := params[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < lo || value > hi {
		return 0, services.Wrap(services.ErrValidation, "generator", "params", fmt.Sprintf("%s must be an integer between %d and %d", key, lo, hi), nil)
	}
	return value, nil
}

func floatParam(params map[string]string, key string, fallback, lo, hi float64) (float64, error) {
	raw, ok := params[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < lo || value > hi {
		return 0, services.Wrap(services.ErrValidation, "generator", "params", fmt.Sprintf("%s must be a number between %g and %g", key, lo, hi), nil)
	}
	return value, nil
}
