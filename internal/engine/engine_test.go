package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"snapsync/internal/engine"
	"snapsync/internal/queue"
	"snapsync/internal/services"
	"snapsync/internal/testsupport"
	"snapsync/internal/uploader"

	"snapsync/internal/config"
	"snapsync/internal/logging"
)

type nopUploader struct{}

func (nopUploader) Upload(ctx context.Context, sourcePath, remoteKey string) (*uploader.Result, error) {
	return &uploader.Result{RemoteKey: remoteKey}, nil
}

func newEngine(t *testing.T, cfg *config.Config) (*engine.Engine, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	eng := engine.New(cfg, store, logging.NewNop(), nopUploader{})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.Stop(stopCtx)
	})
	return eng, store
}

func TestEnqueueValidPhoto(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, store := newEngine(t, cfg)
	ctx := context.Background()

	path := testsupport.WritePNG(t, t.TempDir(), "shot.png", testsupport.GradientImage(64, 64, 0))
	result, err := eng.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if result.Item == nil || result.Item.ID == 0 {
		t.Fatal("expected persisted item")
	}
	if result.Item.ContentHash == "" {
		t.Fatal("expected content hash recorded")
	}
	if result.Item.Width != 64 || result.Item.Height != 64 {
		t.Fatalf("unexpected dimensions %dx%d", result.Item.Width, result.Item.Height)
	}

	stored, err := store.GetByID(ctx, result.Item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored == nil {
		t.Fatal("item not durable")
	}
}

func TestEnqueueRejectsNonImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _ := newEngine(t, cfg)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("not a photo at all"), 0o644); err != nil {
		t.Fatalf("write text file: %v", err)
	}

	_, err := eng.Enqueue(context.Background(), path)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnqueueSamePathTwiceIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _ := newEngine(t, cfg)
	ctx := context.Background()

	path := testsupport.WritePNG(t, t.TempDir(), "shot.png", testsupport.GradientImage(64, 64, 0))

	first, err := eng.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, err := eng.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if !second.AlreadyQueued {
		t.Fatal("expected second submission to be a no-op")
	}
	if second.Item.ID != first.Item.ID {
		t.Fatalf("expected same item, got %d and %d", first.Item.ID, second.Item.ID)
	}
}

func TestEnqueueFailedItemIsNotDuplicated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, store := newEngine(t, cfg)
	eng.Pause()
	ctx := context.Background()

	path := testsupport.WritePNG(t, t.TempDir(), "shot.png", testsupport.GradientImage(64, 64, 0))
	first, err := eng.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, 1); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.MarkFailed(ctx, first.Item.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// A watch sweep resubmitting the same path must not insert a second
	// row that would shadow the failed item inside its own group.
	second, err := eng.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if !second.AlreadyQueued {
		t.Fatal("expected resubmission of a failed item to be a no-op")
	}
	if second.Item.ID != first.Item.ID {
		t.Fatalf("expected same item, got %d and %d", first.Item.ID, second.Item.ID)
	}
	if second.Item.Status != queue.StatusFailed {
		t.Fatalf("expected item to stay failed, got %s", second.Item.Status)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 1 {
		t.Fatalf("expected 1 queue row, got %d", health.Total)
	}
}

func TestThreeIdenticalPhotosUploadOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, store := newEngine(t, cfg)
	ctx := context.Background()

	dir := t.TempDir()
	img := testsupport.GradientImage(64, 64, 0)
	var ids []int64
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		path := testsupport.WritePNG(t, dir, name, img)
		result, err := eng.Enqueue(ctx, path)
		if err != nil {
			t.Fatalf("Enqueue %s failed: %v", name, err)
		}
		ids = append(ids, result.Item.ID)
	}

	groups, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(groups))
	}

	uploadable := 0
	for _, id := range ids {
		item, _ := store.GetByID(ctx, id)
		if !item.ExcludedFromUpload {
			uploadable++
		}
	}
	if uploadable != 1 {
		t.Fatalf("expected exactly 1 uploadable copy, got %d", uploadable)
	}
}

func TestStatusReflectsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, _ := newEngine(t, cfg)
	ctx := context.Background()

	path := testsupport.WritePNG(t, t.TempDir(), "shot.png", testsupport.GradientImage(64, 64, 0))
	if _, err := eng.Enqueue(ctx, path); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	status, err := eng.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected engine running")
	}
	if status.Queue.Total == 0 {
		t.Fatal("expected queued items in status")
	}
	if status.IndexSize == 0 {
		t.Fatal("expected fingerprint in index")
	}
}

func TestPurgeCompletedForgetsFingerprints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.CompletedRetentionDays = 1
	eng, store := newEngine(t, cfg)
	ctx := context.Background()

	path := testsupport.WritePNG(t, t.TempDir(), "shot.png", testsupport.GradientImage(64, 64, 0))
	result, err := eng.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Complete the item and backdate the completion past retention.
	if _, err := store.ClaimNext(ctx, 1); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.MarkCompleted(ctx, result.Item.ID, "photos/shot.png"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	item, _ := store.GetByID(ctx, result.Item.ID)
	past := time.Now().UTC().AddDate(0, 0, -3)
	item.CompletedAt = &past
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	purged, err := eng.PurgeCompleted(ctx)
	if err != nil {
		t.Fatalf("PurgeCompleted failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 item purged, got %d", purged)
	}

	status, err := eng.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.IndexSize != 0 {
		t.Fatalf("expected fingerprint forgotten after purge, got %d entries", status.IndexSize)
	}
}

func TestRetryFailedRequeues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	eng, store := newEngine(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "/photos/f.jpg", "hash-f")
	if _, err := store.ClaimNext(ctx, 1); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.MarkFailed(ctx, item.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	count, err := eng.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried, got %d", count)
	}
}
