package services_test

import (
	"errors"
	"strings"
	"testing"

	"montage/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrRender, "render", "mux", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"render", "mux", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"validation", services.Wrap(services.ErrValidation, "timeline", "build", "no tracks", nil), services.KindValidation},
		{"already approved", services.ErrAlreadyApproved, services.KindConflict},
		{"already rejected", services.Wrap(services.ErrAlreadyRejected, "approval", "approve", "img-1", nil), services.KindConflict},
		{"not found", services.Wrap(services.ErrNotFound, "store", "get job", "", nil), services.KindNotFound},
		{"external", services.Wrap(services.ErrExternalService, "generator", "generate", "", errors.New("502")), services.KindExternalService},
		{"cancelled", services.ErrCancelled, services.KindCancelled},
		{"plain", errors.New("io"), services.KindInternal},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
	if services.KindOf(nil) != "" {
		t.Fatal("expected empty kind for nil")
	}
}

func TestDetailsStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "pipeline", "validate", "at least one audio track is required", nil)
	details := services.Details(err)
	if details.Kind != services.KindValidation {
		t.Fatalf("unexpected kind %s", details.Kind)
	}
	if details.Message != "pipeline: validate: at least one audio track is required" {
		t.Fatalf("unexpected message %q", details.Message)
	}
}

func TestIsRetryable(t *testing.T) {
	if !services.IsRetryable(services.Wrap(services.ErrExternalService, "generator", "", "", nil)) {
		t.Fatal("expected external service errors to be retryable")
	}
	if services.IsRetryable(services.Wrap(services.ErrValidation, "generator", "", "", nil)) {
		t.Fatal("expected validation errors to be terminal")
	}
}
