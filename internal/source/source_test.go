package source_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"snapsync/internal/services"
	"snapsync/internal/source"
)

func TestLocalOpenReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	payload := []byte("not really a jpeg")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reader, size, err := source.NewLocal().Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), size)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestLocalOpenMissingFileIsRetryable(t *testing.T) {
	_, _, err := source.NewLocal().Open(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	// A missing path may just be an unmounted card; the attempt must be
	// chargeable rather than terminal.
	if !services.IsRetryable(err) {
		t.Fatalf("expected retryable classification, got %v", err)
	}
}

func TestLocalOpenHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := source.NewLocal().Open(ctx, "irrelevant"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
