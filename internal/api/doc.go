// Package api exposes the daemon over HTTP and ships the typed client the
// CLI uses to talk to it.
//
// # Routes
//
// Routes are registered on a gorilla/mux router in server.go. Project-scoped
// collections live under /api/projects/{project}/...; individual records are
// addressed directly (/api/jobs/{id}, /api/previews/{id}, ...). Local asset
// files are served under /files/ so preview URLs resolve without S3.
//
// # Errors
//
// Handlers return errors tagged with the services markers. writeError maps
// the error kind to an HTTP status (validation 400, not_found 404,
// conflict 409, external_service 502, everything else 500) and encodes
// ErrorResponse. The client reverses the mapping so callers can use
// errors.Is against the same markers.
//
// # Wire format
//
// DTOs use snake_case JSON. Timestamps are RFC3339 with milliseconds.
package api
