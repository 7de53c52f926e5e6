package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// claimRaceRetries bounds how many times ClaimNext re-selects after losing a
// compare-and-set race to another worker.
const claimRaceRetries = 5

// ClaimNext atomically moves the oldest eligible pending item to processing
// on behalf of workerID. Items excluded by deduplication or still inside
// their backoff window are skipped. Returns nil when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, workerID int) (*Item, error) {
	ctx = ensureContext(ctx)

	for attempt := 0; attempt < claimRaceRetries; attempt++ {
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339Nano)

		row := s.db.QueryRowContext(
			ctx,
			`SELECT `+itemColumns+` FROM queue_items
             WHERE status = ? AND excluded_from_upload = 0
               AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
             ORDER BY created_at, id LIMIT 1`,
			StatusPending,
			nowStr,
		)
		candidate, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select claimable item: %w", err)
		}

		// The status guard makes the claim a compare-and-set: a concurrent
		// worker that claimed first leaves zero rows affected here.
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
             SET status = ?, worker_id = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing,
			workerID,
			nowStr,
			nowStr,
			candidate.ID,
			StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim item: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}
		return s.GetByID(ctx, candidate.ID)
	}
	return nil, nil
}

// Release returns a processing item to pending without charging an attempt,
// used when the claim is abandoned before any upload work happened (rate
// denial, shutdown).
func (s *Store) Release(ctx context.Context, id int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("release item: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ResetStuckProcessing returns every processing item to pending. Called once
// at daemon startup: anything still marked processing was orphaned by a
// crash, and its interrupted attempt is not charged.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleProcessing returns processing items whose heartbeat predates
// the cutoff back to pending, without charging an attempt.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}
