package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrResource        = errors.New("resource error")
	ErrExternalService = errors.New("external service error")
	ErrRender          = errors.New("render error")
	ErrCancelled       = errors.New("cancelled")
)

// ErrAlreadyApproved and ErrAlreadyRejected are conflict-class errors raised
// when an image has already left the preview state.
var (
	ErrAlreadyApproved = fmt.Errorf("%w: image already approved", ErrConflict)
	ErrAlreadyRejected = fmt.Errorf("%w: image already rejected", ErrConflict)
)

// Kind is the stable, machine-readable classification of an error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindResource        Kind = "resource"
	KindExternalService Kind = "external_service"
	KindRender          Kind = "render"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrCancelled, KindCancelled},
	{ErrValidation, KindValidation},
	{ErrConflict, KindConflict},
	{ErrNotFound, KindNotFound},
	{ErrExternalService, KindExternalService},
	{ErrRender, KindRender},
	{ErrResource, KindResource},
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrResource
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the classified view of an error used by the scheduler and
// the HTTP layer.
type ErrorDetails struct {
	Kind    Kind
	Message string
}

// Details classifies err and returns a human-readable message without the
// marker prefix.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := KindOf(err)
	msg := strings.TrimSpace(err.Error())
	for _, mk := range markerKinds {
		prefix := mk.marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
			break
		}
	}
	return ErrorDetails{Kind: kind, Message: msg}
}

// KindOf returns the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the failed operation.
// Only backend failures qualify; input and state errors never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalService)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
