package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/logging"
	"snapsync/internal/queue"
	"snapsync/internal/testsupport"
	"snapsync/internal/uploader"
)

type fakeUploader struct {
	mu      sync.Mutex
	errs    []error
	uploads []string
}

func (f *fakeUploader) Upload(ctx context.Context, sourcePath, remoteKey string) (*uploader.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, remoteKey)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &uploader.Result{RemoteKey: remoteKey, Size: 1024}, nil
}

func (f *fakeUploader) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, up uploader.Uploader) *Manager {
	t.Helper()
	return NewManager(cfg, store, logging.NewNop(), up)
}

func TestProcessNextUploadsAndCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{}
	m := newTestManager(t, cfg, store, fake)

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")

	if !m.processNext(ctx, 1, m.logger) {
		t.Fatal("expected processNext to do work")
	}

	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.RemoteKey == "" {
		t.Fatal("expected remote key recorded")
	}
	if fake.uploadCount() != 1 {
		t.Fatalf("expected 1 upload, got %d", fake.uploadCount())
	}

	admissions, err := store.AdmissionsSince(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("AdmissionsSince failed: %v", err)
	}
	if len(admissions) != 1 {
		t.Fatalf("expected 1 persisted admission, got %d", len(admissions))
	}
}

func TestRetryableFailureBacksOffThenFailsAtBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(2))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{errs: []error{
		uploader.NewRetryable(errors.New("503 service unavailable")),
		uploader.NewRetryable(errors.New("503 service unavailable")),
	}}
	m := newTestManager(t, cfg, store, fake)

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")

	if !m.processNext(ctx, 1, m.logger) {
		t.Fatal("expected first attempt to run")
	}
	got, _ := store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusPending || got.Attempts != 1 {
		t.Fatalf("expected pending after retryable failure, got %#v", got)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.After(time.Now().UTC()) {
		t.Fatalf("expected future backoff gate, got %v", got.NextAttemptAt)
	}

	// Fast-forward past the backoff so the item is claimable again.
	got.NextAttemptAt = nil
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if !m.processNext(ctx, 1, m.logger) {
		t.Fatal("expected second attempt to run")
	}
	got, _ = store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusFailed {
		t.Fatalf("expected failed after exhausting retry budget, got %s", got.Status)
	}
	if got.Attempts != 2 {
		t.Fatalf("expected 2 attempts charged, got %d", got.Attempts)
	}
}

func TestPermanentFailureFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{errs: []error{uploader.NewPermanent(errors.New("access denied"))}}
	m := newTestManager(t, cfg, store, fake)

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")

	if !m.processNext(ctx, 1, m.logger) {
		t.Fatal("expected processNext to do work")
	}
	got, _ := store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusFailed || got.Attempts != 1 {
		t.Fatalf("expected immediate failure, got %#v", got)
	}
}

func TestRateDenialReleasesClaimWithoutCharge(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRateLimit(1, 60))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{}
	m := newTestManager(t, cfg, store, fake)

	// Exhaust the window before the worker gets a chance.
	if ok, _ := m.limiter.TryAdmit(); !ok {
		t.Fatal("expected to charge the window")
	}

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")

	if m.processNext(ctx, 1, m.logger) {
		t.Fatal("expected no work while rate limited")
	}
	got, _ := store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("expected item released to pending, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("rate denial charged an attempt: %d", got.Attempts)
	}
	if fake.uploadCount() != 0 {
		t.Fatal("upload ran despite rate denial")
	}
}

func TestShutdownReleasesClaimWithoutCharge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{errs: []error{fmt.Errorf("put object: %w", context.Canceled)}}
	m := newTestManager(t, cfg, store, fake)

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")
	claimed, err := store.ClaimNext(ctx, 1)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: item=%#v err=%v", claimed, err)
	}

	m.uploadItem(ctx, claimed, m.logger)

	got, _ := store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusPending || got.Attempts != 0 {
		t.Fatalf("expected attempt-neutral release on shutdown, got %#v", got)
	}
}

func TestManagerLifecycleWithWake(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{}
	m := newTestManager(t, cfg, store, fake)

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(stopCtx)
	}()

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")
	m.Wake()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetByID(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.Status == queue.StatusCompleted {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("item never completed")
}

func TestPauseStopsClaimsUntilResume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &fakeUploader{}
	m := newTestManager(t, cfg, store, fake)
	m.Pause()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(stopCtx)
	}()

	item := testsupport.NewItem(t, store, "/photos/a.jpg", "hash-a")
	m.Wake()

	time.Sleep(300 * time.Millisecond)
	got, _ := store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusPending {
		t.Fatalf("paused manager processed item: %s", got.Status)
	}

	m.Resume()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := store.GetByID(ctx, item.ID)
		if got.Status == queue.StatusCompleted {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("item never completed after resume")
}

func TestRemoteKeyFor(t *testing.T) {
	item := &queue.Item{
		FileName:    "beach.jpg",
		CaptureTime: time.Date(2026, 7, 14, 9, 30, 0, 0, time.UTC),
	}
	if got := RemoteKeyFor(item); got != "2026/07/beach.jpg" {
		t.Fatalf("unexpected remote key %q", got)
	}

	fallback := &queue.Item{
		FileName:  "scan.png",
		CreatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	if got := RemoteKeyFor(fallback); got != "2025/12/scan.png" {
		t.Fatalf("unexpected fallback key %q", got)
	}

	bare := &queue.Item{FileName: "x.jpg"}
	if got := RemoteKeyFor(bare); got != "x.jpg" {
		t.Fatalf("unexpected bare key %q", got)
	}
}
