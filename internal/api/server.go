package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"montage/internal/approval"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/projects"
	"montage/internal/scheduler"
	"montage/internal/services"
	"montage/internal/tracks"
)

// StatusFunc reports daemon-level status for GET /api/status.
type StatusFunc func(ctx context.Context) DaemonStatus

// Options wire the server to the daemon's components.
type Options struct {
	Projects  *projects.Catalog
	Tracks    *tracks.Library
	Approval  *approval.Registry
	Scheduler *scheduler.Scheduler
	// Defaults seed composition settings before the request body is decoded.
	Defaults pipeline.Settings
	Status   StatusFunc
	// FilesRoot enables GET /files/{key} for the local asset store.
	FilesRoot string
	// Token, when set, is required as a bearer token on /api routes.
	Token          string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the HTTP front end of the daemon.
type Server struct {
	projects  *projects.Catalog
	tracks    *tracks.Library
	approval  *approval.Registry
	scheduler *scheduler.Scheduler
	defaults  pipeline.Settings
	status    StatusFunc
	filesRoot string
	token     string
	origins   []string
	logger    *slog.Logger
}

// NewServer constructs a server.
func NewServer(opts Options) *Server {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		projects:  opts.Projects,
		tracks:    opts.Tracks,
		approval:  opts.Approval,
		scheduler: opts.Scheduler,
		defaults:  opts.Defaults,
		status:    opts.Status,
		filesRoot: strings.TrimSpace(opts.FilesRoot),
		token:     strings.TrimSpace(opts.Token),
		origins:   origins,
		logger:    logging.NewComponentLogger(opts.Logger, "api-server"),
	}
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(s.authenticate)

	apiRouter.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	apiRouter.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)
	apiRouter.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	apiRouter.HandleFunc("/projects/{project}", s.handleGetProject).Methods(http.MethodGet)
	apiRouter.HandleFunc("/projects/{project}", s.handleUpdateProject).Methods(http.MethodPut)
	apiRouter.HandleFunc("/projects/{project}", s.handleDeleteProject).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/projects/{project}/videos", s.handleListVideos).Methods(http.MethodGet)

	apiRouter.HandleFunc("/projects/{project}/tracks", s.handleRegisterTrack).Methods(http.MethodPost)
	apiRouter.HandleFunc("/projects/{project}/tracks", s.handleListTracks).Methods(http.MethodGet)
	apiRouter.HandleFunc("/tracks/{id}", s.handleRemoveTrack).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/projects/{project}/compositions", s.handleSubmitComposition).Methods(http.MethodPost)
	apiRouter.HandleFunc("/projects/{project}/jobs", s.handleListJobs).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs/{id}", s.handleJobStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/jobs/{id}/cancel", s.handleCancelJob).Methods(http.MethodPost)

	apiRouter.HandleFunc("/projects/{project}/previews", s.handleCreatePreview).Methods(http.MethodPost)
	apiRouter.HandleFunc("/previews/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	apiRouter.HandleFunc("/previews/{id}/reject", s.handleReject).Methods(http.MethodPost)
	apiRouter.HandleFunc("/projects/{project}/images", s.handleListImages).Methods(http.MethodGet)
	apiRouter.HandleFunc("/images/{id}", s.handleRemoveImage).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/projects/{project}/images/cleanup", s.handleCleanup).Methods(http.MethodPost)

	if s.filesRoot != "" {
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", noDirListing(http.FileServer(http.Dir(s.filesRoot)))))
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found", Kind: string(services.KindNotFound)})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = s.requestID(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}), handlers.PrintRecoveryStack(true))(h)
	h = handlers.CORS(
		handlers.AllowedOrigins(s.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
	)(h)
	return h
}

// requestID tags each request with a correlation id carried through the
// request context into log lines.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// authenticate validates bearer tokens. With no token configured every
// request passes through.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	level := slog.LevelDebug
	if params.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	attrs := []logging.Attr{
		logging.String("method", params.Request.Method),
		logging.String("path", params.URL.Path),
		logging.Int("status", params.StatusCode),
		logging.Int("bytes", params.Size),
		logging.Duration("elapsed", time.Since(params.TimeStamp)),
	}
	ctx := params.Request.Context()
	logging.WithContext(ctx, s.logger).Log(ctx, level, "http request", logging.Args(attrs...)...)
}

// recoveryLogger adapts slog to the gorilla RecoveryHandler logger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	logging.ErrorWithContext(l.logger, "http handler panic", "api_panic",
		logging.String("panic", strings.TrimSpace(fmt.Sprintln(v...))),
		logging.String(logging.FieldErrorHint, "report the stack trace in the daemon log"),
	)
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
