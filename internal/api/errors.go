package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"montage/internal/logging"
	"montage/internal/services"
)

const maxBodyBytes = 1 << 20

// StatusForKind maps an error classification to an HTTP status.
func StatusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	details := services.Details(err)
	status := StatusForKind(details.Kind)
	message := details.Message
	if status >= http.StatusInternalServerError {
		logger := logging.WithContext(r.Context(), s.logger)
		logger.Error("request failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("error_kind", string(details.Kind)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "see error detail"),
		)
		if details.Kind == services.KindInternal {
			message = "internal error"
		}
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(details.Kind)})
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "decode", fmt.Sprintf("invalid request body: %v", err), nil)
	}
	return nil
}
