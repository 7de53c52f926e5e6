package ipc

import (
	"time"

	"snapsync/internal/queue"
)

// QueueItem is the wire representation of a queued photo.
type QueueItem struct {
	ID                 int64      `json:"id"`
	SourcePath         string     `json:"source_path"`
	FileName           string     `json:"file_name"`
	SizeBytes          int64      `json:"size_bytes"`
	MimeType           string     `json:"mime_type"`
	ContentHash        string     `json:"content_hash"`
	Width              int        `json:"width"`
	Height             int        `json:"height"`
	CaptureTime        time.Time  `json:"capture_time"`
	Status             string     `json:"status"`
	Attempts           int        `json:"attempts"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	NextAttemptAt      *time.Time `json:"next_attempt_at,omitempty"`
	RemoteKey          string     `json:"remote_key,omitempty"`
	GroupID            *int64     `json:"group_id,omitempty"`
	ExcludedFromUpload bool       `json:"excluded_from_upload"`
	NeedsReview        bool       `json:"needs_review"`
	ReviewReason       string     `json:"review_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// FromQueueItem converts a persisted item into its wire form.
func FromQueueItem(item *queue.Item) QueueItem {
	return QueueItem{
		ID:                 item.ID,
		SourcePath:         item.SourcePath,
		FileName:           item.FileName,
		SizeBytes:          item.SizeBytes,
		MimeType:           item.MimeType,
		ContentHash:        item.ContentHash,
		Width:              item.Width,
		Height:             item.Height,
		CaptureTime:        item.CaptureTime,
		Status:             string(item.Status),
		Attempts:           item.Attempts,
		ErrorMessage:       item.ErrorMessage,
		NextAttemptAt:      item.NextAttemptAt,
		RemoteKey:          item.RemoteKey,
		GroupID:            item.GroupID,
		ExcludedFromUpload: item.ExcludedFromUpload,
		NeedsReview:        item.NeedsReview,
		ReviewReason:       item.ReviewReason,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
		CompletedAt:        item.CompletedAt,
	}
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and engine status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	Paused      bool           `json:"paused"`
	QueueStats  map[string]int `json:"queue_stats"`
	Excluded    int            `json:"excluded"`
	InFlight    int            `json:"in_flight"`
	RateLimit   int            `json:"rate_limit"`
	IndexSize   int            `json:"index_size"`
	QueueDBPath string         `json:"queue_db_path"`
	LockPath    string         `json:"lock_path"`
	PID         int            `json:"pid"`
}

// EnqueueRequest submits photo paths for upload.
type EnqueueRequest struct {
	Paths []string `json:"paths"`
}

// EnqueueOutcome describes what happened to one submitted path.
type EnqueueOutcome struct {
	Path          string     `json:"path"`
	Item          *QueueItem `json:"item,omitempty"`
	AlreadyQueued bool       `json:"already_queued"`
	RateSaturated bool       `json:"rate_saturated"`
	RetryAt       *time.Time `json:"retry_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// EnqueueResponse reports per-path outcomes.
type EnqueueResponse struct {
	Outcomes []EnqueueOutcome `json:"outcomes"`
}

// PauseRequest suspends upload claiming.
type PauseRequest struct{}

// PauseResponse acknowledges the pause.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest lifts a pause.
type ResumeRequest struct{}

// ResumeResponse acknowledges the resume.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueRemoveRequest removes specific items by ID.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed entries.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed items.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed items.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueIncludeRequest clears dedup exclusions on the given items.
type QueueIncludeRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueIncludeResponse reports the number of items made uploadable.
type QueueIncludeResponse struct {
	Included int64 `json:"included"`
}

// QueuePurgeRequest drops completed items past the retention window.
type QueuePurgeRequest struct{}

// QueuePurgeResponse reports number of purged entries.
type QueuePurgeResponse struct {
	Purged int64 `json:"purged"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Excluded   int `json:"excluded"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error"`
}
