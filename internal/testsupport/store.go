package testsupport

import (
	"context"
	"testing"

	"snapsync/internal/config"
	"snapsync/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem inserts a pending photo for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, sourcePath, contentHash string) *queue.Item {
	t.Helper()

	item, err := store.NewItem(context.Background(), &queue.Item{
		SourcePath:  sourcePath,
		FileName:    sourcePath,
		SizeBytes:   1024,
		MimeType:    "image/jpeg",
		ContentHash: contentHash,
		Width:       64,
		Height:      64,
	})
	if err != nil {
		t.Fatalf("store.NewItem: %v", err)
	}
	return item
}
