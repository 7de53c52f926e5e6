package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"snapsync/internal/logging"
	"snapsync/internal/queue"
	"snapsync/internal/services"
	"snapsync/internal/uploader"
)

func (m *Manager) runWorker(ctx context.Context, workerID int) {
	defer m.wg.Done()

	ctx = services.WithWorkerID(ctx, workerID)
	logger := m.logger.With(
		logging.String(logging.FieldComponent, "workflow-worker"),
		logging.Int(logging.FieldWorkerID, workerID),
	)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		worked := false
		if !m.Paused() {
			worked = m.processNext(ctx, workerID, logger)
		}
		if worked {
			// Drain the backlog before going back to sleep.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.wake:
		}
	}
}

// processNext claims and uploads one item. It reports whether it did any
// work, so callers know whether to keep draining or wait.
func (m *Manager) processNext(ctx context.Context, workerID int, logger *slog.Logger) bool {
	item, err := m.store.ClaimNext(ctx, workerID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("claim failed", logging.Error(err))
		}
		return false
	}
	if item == nil {
		return false
	}

	itemLogger := logger.With(logging.Int64(logging.FieldItemID, item.ID))

	// The window is charged before the attempt starts; a denial releases the
	// claim without touching the item's attempt count.
	admitted, when := m.limiter.TryAdmit()
	if !admitted {
		if err := m.store.Release(ctx, item.ID); err != nil {
			itemLogger.Error("release after rate denial failed", logging.Error(err))
		}
		itemLogger.Debug("rate limited", logging.Time("retry_at", when))
		return false
	}
	if err := m.store.RecordAdmission(ctx, when); err != nil {
		itemLogger.Warn("persist rate admission failed", logging.Error(err))
	}

	m.uploadItem(ctx, item, itemLogger)
	return true
}

func (m *Manager) uploadItem(ctx context.Context, item *queue.Item, logger *slog.Logger) {
	ctx = services.WithItemID(ctx, item.ID)
	correlationID := uuid.NewString()
	ctx = services.WithRequestID(ctx, correlationID)
	logger = logger.With(logging.String(logging.FieldCorrelationID, correlationID))

	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)
	defer func() {
		cancelHeartbeat()
		hbWG.Wait()
	}()

	remoteKey := RemoteKeyFor(item)
	logger.Info("upload started",
		logging.String("file", item.FileName),
		logging.Int("attempt", item.Attempts+1),
		logging.String("remote_key", remoteKey))

	start := time.Now()
	result, err := m.up.Upload(ctx, item.SourcePath, remoteKey)
	if err == nil {
		if markErr := m.store.MarkCompleted(ctx, item.ID, result.RemoteKey); markErr != nil {
			logger.Error("persist completion failed", logging.Error(markErr))
			return
		}
		logger.Info("upload completed",
			logging.String("remote_key", result.RemoteKey),
			logging.Int64("bytes", result.Size),
			logging.Duration("elapsed", time.Since(start)))
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutdown, not a verdict on the item. Give the claim back.
		if relErr := m.store.Release(context.WithoutCancel(ctx), item.ID); relErr != nil {
			logger.Error("release on shutdown failed", logging.Error(relErr))
		}
		return
	}

	failedAttempts := item.Attempts + 1
	if uploader.IsRetryable(err) && failedAttempts < m.cfg.Queue.MaxRetries {
		next := m.scheduler.NextEligibleTime(time.Now().UTC(), failedAttempts)
		if markErr := m.store.MarkRetryable(ctx, item.ID, err.Error(), next); markErr != nil {
			logger.Error("persist retryable failure failed", logging.Error(markErr))
			return
		}
		logger.Warn("upload failed, will retry",
			logging.Error(err),
			logging.Int("attempt", failedAttempts),
			logging.Time("next_attempt", next))
		return
	}

	if markErr := m.store.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
		logger.Error("persist failure failed", logging.Error(markErr))
		return
	}
	logger.Error("upload failed permanently",
		logging.Error(err),
		logging.Int("attempts", failedAttempts))
}

// RemoteKeyFor derives the object key from the capture time and file name,
// so remote layout follows when the photo was taken rather than when it was
// uploaded.
func RemoteKeyFor(item *queue.Item) string {
	when := item.CaptureTime
	if when.IsZero() {
		when = item.CreatedAt
	}
	if when.IsZero() {
		return item.FileName
	}
	return path.Join(when.UTC().Format("2006/01"), item.FileName)
}
