package generator_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"montage/internal/generator"
	"montage/internal/services"
	"montage/internal/testsupport"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img, err := generator.NewPlaceholder(8, 8).Generate(context.Background(), generator.Request{Prompt: "seed"})
	if err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	return img.Data
}

func TestNormalizeService(t *testing.T) {
	cases := map[string]string{
		"":                 generator.ServiceStableDiffusion,
		"DALLE":            generator.ServiceDalle,
		" midjourney ":     generator.ServiceMidjourney,
		"stable-diffusion": generator.ServiceStableDiffusion,
	}
	for in, want := range cases {
		got, err := generator.NormalizeService(in)
		if err != nil {
			t.Fatalf("NormalizeService(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeService(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := generator.NormalizeService("imagen"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown service err = %v", err)
	}
}

func TestPlaceholderIsDeterministicPNG(t *testing.T) {
	ph := generator.NewPlaceholder(32, 16)
	req := generator.Request{Prompt: "neon city", Service: generator.ServiceDalle}
	first, err := ph.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := ph.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("same prompt produced different images")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(first.Data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width != 32 || cfg.Height != 16 {
		t.Fatalf("size = %dx%d", cfg.Width, cfg.Height)
	}
	if first.ContentType != "image/png" {
		t.Fatalf("content type %q", first.ContentType)
	}

	other, err := ph.Generate(context.Background(), generator.Request{Prompt: "ocean", Service: generator.ServiceDalle})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if bytes.Equal(first.Data, other.Data) {
		t.Fatal("different prompts produced identical images")
	}
}

func TestPlaceholderRejectsBadSize(t *testing.T) {
	_, err := generator.NewPlaceholder(0, 0).Generate(context.Background(), generator.Request{
		Prompt: "x",
		Params: map[string]string{"width": "huge"},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestStableDiffusionGenerate(t *testing.T) {
	data := samplePNG(t)
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"filename":     "generated_1.png",
			"filepath":     "/app/outputs/generated_1.png",
			"image_base64": base64.StdEncoding.EncodeToString(data),
			"prompt":       "sunset",
		})
	}))
	defer server.Close()

	sd := generator.NewStableDiffusion(server.URL+"/", generator.Defaults{NegativePrompt: "blurry", Steps: 20, Width: 512, Height: 512})
	img, err := sd.Generate(context.Background(), generator.Request{
		Prompt: " sunset ",
		Params: map[string]string{"steps": "12", "width": "640"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(img.Data, data) {
		t.Fatal("image bytes not decoded from response")
	}
	if img.ContentType != "image/png" {
		t.Fatalf("content type %q", img.ContentType)
	}
	if got["prompt"] != "sunset" || got["negative_prompt"] != "blurry" {
		t.Fatalf("unexpected payload %v", got)
	}
	if got["steps"] != float64(12) || got["width"] != float64(640) || got["height"] != float64(512) {
		t.Fatalf("unexpected size params %v", got)
	}
	if got["guidance_scale"] != 7.5 {
		t.Fatalf("guidance default not applied: %v", got["guidance_scale"])
	}
}

func TestStableDiffusionFailuresAreExternal(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Model not loaded yet"})
		}},
		{"unsuccessful", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "oom"})
		}},
		{"garbage", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
		{"empty image", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()
			sd := generator.NewStableDiffusion(server.URL, generator.Defaults{})
			_, err := sd.Generate(context.Background(), generator.Request{Prompt: "x"})
			if !errors.Is(err, services.ErrExternalService) {
				t.Fatalf("err = %v, want ErrExternalService", err)
			}
			if !services.IsRetryable(err) {
				t.Fatal("external failures should be retryable")
			}
		})
	}
}

func TestStableDiffusionHealth(t *testing.T) {
	var loaded atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := "loading"
		if loaded.Load() {
			status = "healthy"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "model_loaded": loaded.Load()})
	}))
	defer server.Close()

	sd := generator.NewStableDiffusion(server.URL, generator.Defaults{})
	if err := sd.Health(context.Background()); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("loading health err = %v", err)
	}
	loaded.Store(true)
	if err := sd.Health(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
}

func TestRouterDispatch(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"image_base64": base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nrest")),
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Generator.StableDiffusionURL = server.URL
	cfg.Generator.Width = 16
	cfg.Generator.Height = 16
	router := generator.New(cfg)

	img, err := router.Generate(context.Background(), generator.Request{Prompt: "a", Service: "stable_diffusion"})
	if err != nil {
		t.Fatalf("sd Generate: %v", err)
	}
	if img.Service != generator.ServiceStableDiffusion || calls.Load() != 1 {
		t.Fatalf("sd not used: service=%q calls=%d", img.Service, calls.Load())
	}

	img, err = router.Generate(context.Background(), generator.Request{Prompt: "a", Service: "midjourney"})
	if err != nil {
		t.Fatalf("midjourney Generate: %v", err)
	}
	if img.Service != generator.ServiceMidjourney || calls.Load() != 1 {
		t.Fatalf("placeholder not used: service=%q calls=%d", img.Service, calls.Load())
	}

	if _, err := router.Generate(context.Background(), generator.Request{Prompt: "  "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty prompt err = %v", err)
	}
}
