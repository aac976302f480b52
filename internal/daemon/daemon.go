package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"montage/internal/approval"
	"montage/internal/config"
	"montage/internal/logging"
	"montage/internal/scheduler"
	"montage/internal/store"
)

// Dependencies are the services the daemon owns for its lifetime.
type Dependencies struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Approval  *approval.Registry
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	scheduler *scheduler.Scheduler
	approval  *approval.Registry
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Scheduler == nil || deps.Approval == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and approval registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		scheduler: deps.Scheduler,
		approval:  deps.Approval,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Serve attaches the HTTP handler exposed on the configured bind address.
// It must be called before Start.
func (d *Daemon) Serve(handler http.Handler) {
	d.api = newAPIServer(d.cfg.Paths.APIBind, handler, d.logger)
}

// Start acquires the daemon lock, then launches the scheduler, the API
// server and the maintenance loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another montage daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.scheduler.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.maintenanceLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("montage daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.Addr()),
		logging.Int("workers", d.cfg.Workflow.Workers),
	)
	d.warnMissingDependencies(runCtx)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("montage daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the address the API server listens on, or "" when the API is
// disabled.
func (d *Daemon) Addr() string {
	return d.api.addr()
}
