package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, source_path, file_name, size_bytes, mime_type, content_hash, dhash, phash, width, height, capture_time, status, attempts, error_message, next_attempt_at, remote_key, group_id, excluded_from_upload, needs_review, review_reason, worker_id, last_heartbeat, created_at, updated_at, completed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		sourcePath       string
		fileName         string
		sizeBytes        int64
		mimeType         sql.NullString
		contentHash      sql.NullString
		dhash            sql.NullInt64
		phash            sql.NullInt64
		width            int
		height           int
		captureRaw       sql.NullString
		statusStr        string
		attempts         int
		errorMessage     sql.NullString
		nextAttemptRaw   sql.NullString
		remoteKey        sql.NullString
		groupID          sql.NullInt64
		excluded         sql.NullInt64
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
		workerID         sql.NullInt64
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		completedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&fileName,
		&sizeBytes,
		&mimeType,
		&contentHash,
		&dhash,
		&phash,
		&width,
		&height,
		&captureRaw,
		&statusStr,
		&attempts,
		&errorMessage,
		&nextAttemptRaw,
		&remoteKey,
		&groupID,
		&excluded,
		&needsReview,
		&reviewReason,
		&workerID,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		SourcePath:   sourcePath,
		FileName:     fileName,
		SizeBytes:    sizeBytes,
		MimeType:     mimeType.String,
		ContentHash:  contentHash.String,
		Width:        width,
		Height:       height,
		Status:       Status(statusStr),
		Attempts:     attempts,
		ErrorMessage: errorMessage.String,
		RemoteKey:    remoteKey.String,
		ReviewReason: reviewReason.String,
	}
	if dhash.Valid {
		item.DHash = uint64(dhash.Int64)
	}
	if phash.Valid {
		item.PHash = uint64(phash.Int64)
	}
	if groupID.Valid {
		gid := groupID.Int64
		item.GroupID = &gid
	}
	if excluded.Valid {
		item.ExcludedFromUpload = excluded.Int64 != 0
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}
	if workerID.Valid {
		item.WorkerID = int(workerID.Int64)
	}

	if capture, err := parseTimeString(captureRaw.String); err == nil {
		item.CaptureTime = capture
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			item.NextAttemptAt = &next
		}
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// hashToDB narrows a 64-bit hash into SQLite's signed INTEGER domain. The bit
// pattern round-trips through uint64 on scan.
func hashToDB(value uint64) int64 {
	return int64(value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
