package queue

import (
	"context"
	"fmt"
	"time"
)

// RecordAdmission persists a rate limiter admission so the window survives a
// daemon restart.
func (s *Store) RecordAdmission(ctx context.Context, admittedAt time.Time) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO rate_admissions (admitted_at) VALUES (?)`,
		admittedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record admission: %w", err)
	}
	return nil
}

// AdmissionsSince returns admissions at or after the cutoff, oldest first.
func (s *Store) AdmissionsSince(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT admitted_at FROM rate_admissions WHERE admitted_at >= ? ORDER BY admitted_at`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query admissions: %w", err)
	}
	defer rows.Close()

	var admissions []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ts, err := parseTimeString(raw)
		if err != nil {
			continue
		}
		admissions = append(admissions, ts)
	}
	return admissions, rows.Err()
}

// PruneAdmissions drops admissions older than the cutoff.
func (s *Store) PruneAdmissions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM rate_admissions WHERE admitted_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune admissions: %w", err)
	}
	return res.RowsAffected()
}
