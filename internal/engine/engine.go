// Package engine wires validation, hashing, deduplication, persistence, and
// the worker pool into the upload pipeline.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/dedup"
	"snapsync/internal/hashing"
	"snapsync/internal/logging"
	"snapsync/internal/media"
	"snapsync/internal/queue"
	"snapsync/internal/services"
	"snapsync/internal/uploader"
	"snapsync/internal/workflow"
)

// Engine owns the enqueue pipeline and the worker pool lifecycle.
type Engine struct {
	cfg     *config.Config
	store   *queue.Store
	logger  *slog.Logger
	index   *dedup.Index
	manager *workflow.Manager
}

// EnqueueResult reports what happened to one submitted photo.
type EnqueueResult struct {
	Item          *queue.Item
	Dedup         *dedup.Result
	AlreadyQueued bool
	// RateSaturated warns that the sliding window is currently full. The
	// item is queued regardless; workers pick it up when capacity frees.
	RateSaturated bool
	RetryAt       time.Time
}

// Status aggregates engine state for the CLI and IPC surface.
type Status struct {
	Running   bool
	Paused    bool
	Queue     queue.HealthSummary
	InFlight  int
	RateLimit int
	IndexSize int
}

// New constructs an engine around an open store and an uploader.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, up uploader.Uploader) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		logger:  logger.With(logging.String(logging.FieldComponent, "engine")),
		index:   dedup.NewIndex(store, cfg.Dedup),
		manager: workflow.NewManager(cfg, store, logger, up),
	}
}

// Start rebuilds the deduplication index from the store and launches the
// worker pool.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.index.Rebuild(ctx); err != nil {
		return err
	}
	e.logger.Info("dedup index rebuilt", logging.Int("fingerprints", e.index.Size()))
	return e.manager.Start(ctx)
}

// Stop shuts the worker pool down, waiting for in-flight uploads.
func (e *Engine) Stop(ctx context.Context) {
	e.manager.Stop(ctx)
}

// Enqueue validates, fingerprints, deduplicates, and persists one photo.
// The photo is durably queued before this returns; upload happens later.
func (e *Engine) Enqueue(ctx context.Context, path string) (*EnqueueResult, error) {
	photo, err := media.Inspect(path)
	if err != nil {
		return nil, err
	}
	if err := photo.Validate(e.cfg.Validation); err != nil {
		return nil, err
	}

	fp, err := hashing.ComputeFile(photo.Path)
	if err != nil {
		return nil, err
	}

	// Re-submitting the same file is a no-op rather than a new queue entry.
	// This covers failed items too: the watch scanner sweeps the same paths
	// every pass, and a failed photo is revived with retryFailed, not by
	// inserting a second row that would join its own duplicate group.
	if existing, err := e.store.FindBySourcePath(ctx, photo.Path); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "enqueue", "check existing item", err)
	} else if existing != nil && existing.ContentHash == fp.ContentHash {
		return &EnqueueResult{Item: existing, AlreadyQueued: true}, nil
	}

	// Inserted held (excluded) so no worker claims it mid-deduplication;
	// the final disposition lands right after Evaluate.
	item, err := e.store.NewItem(ctx, &queue.Item{
		SourcePath:         photo.Path,
		FileName:           photo.FileName,
		SizeBytes:          photo.SizeBytes,
		MimeType:           photo.MimeType,
		ContentHash:        fp.ContentHash,
		DHash:              fp.DHash,
		PHash:              fp.PHash,
		Width:              fp.Width,
		Height:             fp.Height,
		CaptureTime:        photo.CaptureTime,
		ExcludedFromUpload: true,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "enqueue", "persist item", err)
	}

	dedupResult, err := e.index.Evaluate(ctx, item)
	if err != nil {
		return nil, err
	}
	if dedupResult.GroupID == nil {
		if err := e.store.SetExclusion(ctx, item.ID, false, false, ""); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "engine", "enqueue", "release held item", err)
		}
	}
	item, err = e.store.GetByID(ctx, item.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "enqueue", "reload item", err)
	}

	result := &EnqueueResult{Item: item, Dedup: dedupResult}

	// Peek never charges the window; it only colors the enqueue response.
	if ok, retryAt := e.manager.Limiter().Peek(); !ok {
		result.RateSaturated = true
		result.RetryAt = retryAt
	}

	logger := e.logger.With(logging.Int64(logging.FieldItemID, item.ID))
	switch {
	case dedupResult.ExactDuplicate:
		logger.Info("queued duplicate photo",
			logging.String("file", item.FileName),
			logging.Bool("excluded", item.ExcludedFromUpload))
	case dedupResult.NearDuplicate:
		logger.Info("queued near-duplicate photo",
			logging.String("file", item.FileName),
			logging.Bool("excluded", item.ExcludedFromUpload))
	default:
		logger.Info("queued photo", logging.String("file", item.FileName))
	}

	if item.Uploadable() {
		e.manager.Wake()
	}
	return result, nil
}

// EnqueueBatch submits many paths, collecting per-path failures instead of
// aborting the batch.
func (e *Engine) EnqueueBatch(ctx context.Context, paths []string) ([]*EnqueueResult, map[string]error) {
	var results []*EnqueueResult
	failures := make(map[string]error)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			failures[path] = err
			continue
		}
		result, err := e.Enqueue(ctx, path)
		if err != nil {
			failures[path] = err
			continue
		}
		results = append(results, result)
	}
	return results, failures
}

// Status reports the engine's aggregate state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	health, err := e.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:   e.manager.Running(),
		Paused:    e.manager.Paused(),
		Queue:     health,
		InFlight:  e.manager.Limiter().InFlight(),
		RateLimit: e.cfg.RateLimit.MaxUploadsPerWindow,
		IndexSize: e.index.Size(),
	}, nil
}

// RetryFailed returns failed items to pending with a fresh attempt budget.
func (e *Engine) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	count, err := e.store.RetryFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.manager.Wake()
	}
	return count, nil
}

// IncludeItem clears a deduplication exclusion so the item becomes
// uploadable again. Returns false when the item was not excluded.
func (e *Engine) IncludeItem(ctx context.Context, id int64) (bool, error) {
	item, err := e.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, fmt.Errorf("queue item %d not found", id)
	}
	if !item.ExcludedFromUpload {
		return false, nil
	}
	if err := e.store.SetExclusion(ctx, id, false, false, ""); err != nil {
		return false, err
	}
	if item.Status == queue.StatusPending {
		e.manager.Wake()
	}
	return true, nil
}

// PurgeCompleted drops completed items older than the retention window and
// forgets their fingerprints.
func (e *Engine) PurgeCompleted(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.Queue.CompletedRetentionDays)
	purged, err := e.store.PurgeCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		if err := e.index.Rebuild(ctx); err != nil {
			return purged, err
		}
	}
	return purged, nil
}

// Pause suspends claiming; Resume lifts it.
func (e *Engine) Pause()  { e.manager.Pause() }
func (e *Engine) Resume() { e.manager.Resume() }

// Wake nudges an idle worker.
func (e *Engine) Wake() { e.manager.Wake() }

// Store exposes the queue store for read-side surfaces (CLI, IPC).
func (e *Engine) Store() *queue.Store {
	return e.store
}
