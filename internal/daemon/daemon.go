// Package daemon coordinates the background upload services and enforces
// single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"snapsync/internal/config"
	"snapsync/internal/engine"
	"snapsync/internal/logging"
	"snapsync/internal/queue"
)

// Daemon owns the engine lifecycle plus the ambient loops: directory
// scanning, device monitoring, and periodic maintenance.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	engine  *engine.Engine
	logPath string

	lockPath string
	lock     *flock.Flock
	pidPath  string

	scanner *watchScanner
	devices *deviceMonitor

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Engine       engine.Status
	QueueDBPath  string
	LockFilePath string
	SocketPath   string
	PID          int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, eng *engine.Engine) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || eng == nil {
		return nil, errors.New("daemon requires config, store, logger, and engine")
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		engine:   eng,
		logPath:  filepath.Join(cfg.Paths.LogDir, "snapsync.log"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		pidPath:  filepath.Join(cfg.Paths.DataDir, "snapsyncd.pid"),
	}
	d.scanner = newWatchScanner(cfg, logger, eng)
	d.devices = newDeviceMonitor(cfg, logger, d.scanner)
	return d, nil
}

// Start acquires the daemon lock and launches the engine and ambient loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another snapsync daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.engine.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start engine: %w", err)
	}

	if err := d.writePID(); err != nil {
		d.logger.Warn("failed to write pid file", logging.Error(err))
	}

	d.scanner.Start(d.ctx)
	if err := d.devices.Start(d.ctx); err != nil {
		d.logger.Warn("device monitor unavailable", logging.Error(err))
	}
	go d.runMaintenance(d.ctx)

	d.running.Store(true)
	d.logger.Info("snapsync daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.devices.Stop()
	d.scanner.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	d.engine.Stop(stopCtx)

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	_ = os.Remove(d.pidPath)
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("snapsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Enqueue submits one photo through the engine pipeline.
func (d *Daemon) Enqueue(ctx context.Context, path string) (*engine.EnqueueResult, error) {
	return d.engine.Enqueue(ctx, path)
}

// EnqueueBatch submits many photos, reporting per-path failures.
func (d *Daemon) EnqueueBatch(ctx context.Context, paths []string) ([]*engine.EnqueueResult, map[string]error) {
	return d.engine.EnqueueBatch(ctx, paths)
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// DescribeItem fetches a single queue item.
func (d *Daemon) DescribeItem(ctx context.Context, id int64) (*queue.Item, error) {
	return d.store.GetByID(ctx, id)
}

// RemoveItem deletes a queue item by id.
func (d *Daemon) RemoveItem(ctx context.Context, id int64) (bool, error) {
	return d.store.Remove(ctx, id)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// IncludeItem clears a dedup exclusion so the item can upload.
func (d *Daemon) IncludeItem(ctx context.Context, id int64) (bool, error) {
	return d.engine.IncludeItem(ctx, id)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.engine.RetryFailed(ctx, ids...)
}

// PurgeCompleted drops completed items past the retention window.
func (d *Daemon) PurgeCompleted(ctx context.Context) (int64, error) {
	return d.engine.PurgeCompleted(ctx)
}

// Pause suspends upload claiming; Resume lifts it.
func (d *Daemon) Pause()  { d.engine.Pause() }
func (d *Daemon) Resume() { d.engine.Resume() }

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	engineStatus, err := d.engine.Status(ctx)
	if err != nil {
		d.logger.Warn("engine status unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		Engine:       engineStatus,
		QueueDBPath:  d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
		PID:          os.Getpid(),
	}
}

func (d *Daemon) writePID() error {
	return os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
