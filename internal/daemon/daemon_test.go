package daemon_test

import (
	"context"
	"os"
	"testing"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/daemon"
	"snapsync/internal/engine"
	"snapsync/internal/logging"
	"snapsync/internal/testsupport"
	"snapsync/internal/uploader"
)

type nopUploader struct{}

func (nopUploader) Upload(ctx context.Context, sourcePath, remoteKey string) (*uploader.Result, error) {
	return &uploader.Result{RemoteKey: remoteKey}, nil
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	eng := engine.New(cfg, store, logging.NewNop(), nopUploader{})
	d, err := daemon.New(cfg, store, logging.NewNop(), eng)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected daemon running after Start")
	}
	if !status.Engine.Running {
		t.Fatal("expected engine running after Start")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("unexpected pid %d", status.PID)
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon stopped after Stop")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be rejected by the lock")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start after lock release failed: %v", err)
	}
}

func TestEnqueueThroughDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	path := testsupport.WritePNG(t, t.TempDir(), "shot.png", testsupport.GradientImage(64, 64, 0))
	result, err := d.Enqueue(ctx, path)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if result.Item == nil {
		t.Fatal("expected persisted item")
	}

	items, err := d.ListQueue(ctx, nil)
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(items))
	}
}

func TestWatchScannerDiscoversPhotos(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.Enabled = true
	cfg.Watch.DeviceEvents = false
	cfg.Watch.ScanIntervalSeconds = 3600

	if err := os.MkdirAll(cfg.Paths.PhotosDir, 0o755); err != nil {
		t.Fatalf("create photos dir: %v", err)
	}
	testsupport.WritePNG(t, cfg.Paths.PhotosDir, "holiday.png", testsupport.GradientImage(64, 64, 0))

	d := newDaemon(t, cfg)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The scanner sweeps once at startup; wait for the item to land.
	deadline := time.Now().Add(5 * time.Second)
	for {
		items, err := d.ListQueue(ctx, nil)
		if err != nil {
			t.Fatalf("ListQueue failed: %v", err)
		}
		if len(items) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scanner never enqueued the photo, have %d items", len(items))
		}
		time.Sleep(20 * time.Millisecond)
	}
}
