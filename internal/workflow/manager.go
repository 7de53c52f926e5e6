// Package workflow runs the upload worker pool against the queue store.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/logging"
	"snapsync/internal/queue"
	"snapsync/internal/ratelimit"
	"snapsync/internal/retry"
	"snapsync/internal/uploader"
)

// Manager coordinates the worker pool, rate limiter, and retry scheduler.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	up           uploader.Uploader
	limiter      *ratelimit.Limiter
	scheduler    *retry.Scheduler
	heartbeat    *HeartbeatMonitor
	pollInterval time.Duration

	wake chan struct{}

	mu      sync.RWMutex
	running bool
	paused  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, up uploader.Uploader) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		up:        up,
		limiter:   ratelimit.NewLimiter(cfg.RateLimit.MaxUploadsPerWindow, cfg.RateWindow(), nil),
		scheduler: retry.NewScheduler(cfg.RetryBase(), cfg.RetryMax(), nil),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		wake:         make(chan struct{}, 1),
	}
}

// Limiter exposes the shared sliding window so the engine can report
// saturation at enqueue time without charging it.
func (m *Manager) Limiter() *ratelimit.Limiter {
	return m.limiter
}

// Start resets orphaned claims, restores the rate window, and launches the
// worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	logger := m.logger.With(logging.String(logging.FieldComponent, "workflow"))

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if reset > 0 {
		logger.Info("reset orphaned processing items", logging.Int64("count", reset))
	}

	admissions, err := m.store.AdmissionsSince(ctx, time.Now().UTC().Add(-m.cfg.RateWindow()))
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.limiter.Seed(admissions)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Queue.MaxConcurrentUploads
	for workerID := 1; workerID <= workers; workerID++ {
		m.wg.Add(1)
		go m.runWorker(runCtx, workerID)
	}
	m.wg.Add(1)
	go m.runMaintenance(runCtx, logger)
	m.mu.Unlock()

	logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.Int("rate_limit", m.cfg.RateLimit.MaxUploadsPerWindow),
		logging.Duration("rate_window", m.cfg.RateWindow()))
	return nil
}

// Stop halts the worker pool and waits for in-flight uploads to settle.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel = nil
	m.running = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("timed out waiting for workers to stop")
	}
}

// Wake nudges an idle worker, typically right after an enqueue.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Pause stops workers from claiming new items. In-flight uploads finish.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume lets workers claim items again.
func (m *Manager) Resume() {
	m.mu.Lock()
	paused := m.paused
	m.paused = false
	m.mu.Unlock()
	if paused {
		m.Wake()
	}
}

// Paused reports whether claiming is suspended.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Running reports whether the worker pool is live.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runMaintenance(ctx context.Context, logger *slog.Logger) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.Workflow.HeartbeatInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimStaleItems(ctx, logger); err != nil {
				logger.Warn("stale item reclaim failed", logging.Error(err))
			}
			cutoff := time.Now().UTC().Add(-m.cfg.RateWindow())
			if _, err := m.store.PruneAdmissions(ctx, cutoff); err != nil {
				logger.Warn("admission prune failed", logging.Error(err))
			}
		}
	}
}
