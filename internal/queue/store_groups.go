package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateGroup inserts an empty duplicate group annotated with the similarity
// basis that triggered it.
func (s *Store) CreateGroup(ctx context.Context, similarityBasis string) (*Group, error) {
	if similarityBasis == "" {
		similarityBasis = BasisContentHash
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO duplicate_groups (representative_id, similarity_basis, created_at, updated_at) VALUES (NULL, ?, ?, ?)`,
		similarityBasis,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetGroup(ctx, id)
}

// GetGroup fetches a duplicate group by identifier.
func (s *Store) GetGroup(ctx context.Context, id int64) (*Group, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, representative_id, similarity_basis, created_at, updated_at FROM duplicate_groups WHERE id = ?`,
		id,
	)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// ListGroups returns all duplicate groups ordered by identifier.
func (s *Store) ListGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, representative_id, similarity_basis, created_at, updated_at FROM duplicate_groups ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// SetRepresentative records which member should be uploaded for the group.
func (s *Store) SetRepresentative(ctx context.Context, groupID, itemID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE duplicate_groups SET representative_id = ?, updated_at = ? WHERE id = ?`,
		itemID,
		time.Now().UTC().Format(time.RFC3339Nano),
		groupID,
	); err != nil {
		return fmt.Errorf("set representative: %w", err)
	}
	return nil
}

// AssignToGroup attaches an item to a duplicate group.
func (s *Store) AssignToGroup(ctx context.Context, itemID, groupID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items SET group_id = ?, updated_at = ? WHERE id = ?`,
		groupID,
		time.Now().UTC().Format(time.RFC3339Nano),
		itemID,
	); err != nil {
		return fmt.Errorf("assign to group: %w", err)
	}
	return nil
}

// MergeGroups folds the source groups into dest, moving every member across
// and deleting the drained groups. The destination representative stands
// until the caller re-evaluates it.
func (s *Store) MergeGroups(ctx context.Context, destID int64, sourceIDs ...int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	placeholders := makePlaceholders(len(sourceIDs))
	moveArgs := make([]any, 0, len(sourceIDs)+2)
	moveArgs = append(moveArgs, destID, now)
	deleteArgs := make([]any, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		moveArgs = append(moveArgs, id)
		deleteArgs = append(deleteArgs, id)
	}

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items SET group_id = ?, updated_at = ? WHERE group_id IN (`+placeholders+`)`,
		moveArgs...,
	); err != nil {
		return fmt.Errorf("move group members: %w", err)
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`DELETE FROM duplicate_groups WHERE id IN (`+placeholders+`)`,
		deleteArgs...,
	); err != nil {
		return fmt.Errorf("delete merged groups: %w", err)
	}
	return nil
}

// GroupMembers returns all items attached to a group in enqueue order.
func (s *Store) GroupMembers(ctx context.Context, groupID int64) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE group_id = ? ORDER BY id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetExclusion updates an item's upload eligibility after deduplication.
func (s *Store) SetExclusion(ctx context.Context, itemID int64, excluded, needsReview bool, reason string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE queue_items
         SET excluded_from_upload = ?, needs_review = ?, review_reason = ?, updated_at = ?
         WHERE id = ?`,
		boolToInt(excluded),
		boolToInt(needsReview),
		nullableString(reason),
		time.Now().UTC().Format(time.RFC3339Nano),
		itemID,
	); err != nil {
		return fmt.Errorf("set exclusion: %w", err)
	}
	return nil
}

// FingerprintedItems returns every item carrying a content hash, oldest
// first. The deduplication index rebuilds from this at startup.
func (s *Store) FingerprintedItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE content_hash IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query fingerprinted items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanGroup(scanner interface{ Scan(dest ...any) error }) (*Group, error) {
	var (
		id         int64
		repID      sql.NullInt64
		basis      sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &repID, &basis, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	group := &Group{ID: id, SimilarityBasis: basis.String}
	if repID.Valid {
		rid := repID.Int64
		group.RepresentativeID = &rid
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		group.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		group.UpdatedAt = updated
	}
	return group, nil
}
