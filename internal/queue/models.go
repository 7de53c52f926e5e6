package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message recorded when in-flight items are
// released because the daemon is shutting down.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Item represents a queued photo persisted in SQLite.
type Item struct {
	ID                 int64
	SourcePath         string
	FileName           string
	SizeBytes          int64
	MimeType           string
	ContentHash        string
	DHash              uint64
	PHash              uint64
	Width              int
	Height             int
	CaptureTime        time.Time
	Status             Status
	Attempts           int
	ErrorMessage       string
	NextAttemptAt      *time.Time
	RemoteKey          string
	GroupID            *int64
	ExcludedFromUpload bool
	NeedsReview        bool
	ReviewReason       string
	WorkerID           int
	LastHeartbeat      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// PixelCount reports the decoded resolution recorded at enqueue time.
func (i Item) PixelCount() int64 {
	return int64(i.Width) * int64(i.Height)
}

// IsTerminal reports whether the item has left the retry loop.
func (i Item) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// Uploadable reports whether the scheduler may hand this item to a worker.
func (i Item) Uploadable() bool {
	return i.Status == StatusPending && !i.ExcludedFromUpload
}

// Similarity bases recorded on duplicate groups.
const (
	BasisContentHash = "content_hash"
	BasisPerceptual  = "perceptual"
)

// Group describes a set of items judged to be the same photo.
type Group struct {
	ID               int64
	RepresentativeID *int64
	SimilarityBasis  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Excluded   int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}
