package queue

import (
	"context"
	"fmt"
	"time"
)

// MarkCompleted records a successful upload and leaves the retry loop.
func (s *Store) MarkCompleted(ctx context.Context, id int64, remoteKey string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempts = attempts + 1, remote_key = ?,
             error_message = NULL, next_attempt_at = NULL, worker_id = NULL,
             last_heartbeat = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(remoteKey),
		now,
		now,
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkRetryable charges an attempt, records the error, and parks the item in
// pending until nextAttemptAt.
func (s *Store) MarkRetryable(ctx context.Context, id int64, message string, nextAttemptAt time.Time) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempts = attempts + 1, error_message = ?,
             next_attempt_at = ?, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		nullableString(message),
		nextAttemptAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("mark retryable: %w", err)
	}
	return nil
}

// MarkFailed charges an attempt and moves the item to the terminal failed
// state. Used for permanent errors and for retryable errors that exhausted
// the retry budget.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, attempts = attempts + 1, error_message = ?,
             next_attempt_at = NULL, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RetryFailed moves failed items back to pending with a fresh attempt
// budget. With no ids every failed item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
            SET status = ?, attempts = 0, error_message = NULL,
                next_attempt_at = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, attempts = 0, error_message = NULL,
            next_attempt_at = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
