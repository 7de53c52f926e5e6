package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"snapsync/internal/config"
	"snapsync/internal/daemon"
	"snapsync/internal/engine"
	"snapsync/internal/ipc"
	"snapsync/internal/logging"
	"snapsync/internal/queue"
	"snapsync/internal/testsupport"
	"snapsync/internal/uploader"
)

type nopUploader struct{}

func (nopUploader) Upload(ctx context.Context, sourcePath, remoteKey string) (*uploader.Result, error) {
	return &uploader.Result{RemoteKey: remoteKey}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(*cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// setupCLITestEnv boots a daemon plus IPC server backed by temp directories.
// The engine is paused so queue fixtures stay in the state tests put them in.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	eng := engine.New(cfg, store, logging.NewNop(), nopUploader{})
	d, err := daemon.New(cfg, store, logging.NewNop(), eng)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	d.Pause()
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(testsupport.BaseDir(cfg), "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output missing %q:\n%s", want, output)
	}
}

func TestQueueListAndRetry(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	alpha := testsupport.NewItem(t, env.store, "/photos/alpha.jpg", "hash-alpha")
	testsupport.NewItem(t, env.store, "/photos/beta.jpg", "hash-beta")
	claimed, err := env.store.ClaimNext(ctx, 1)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != alpha.ID {
		t.Fatalf("expected to claim the oldest pending item")
	}
	if err := env.store.MarkFailed(ctx, claimed.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha.jpg")
	requireContains(t, out, "beta.jpg")
	requireContains(t, out, "failed")

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed items")

	updated, err := env.store.GetByID(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected pending after retry, got %s", updated.Status)
	}
}

func TestQueueInclude(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	item := testsupport.NewItem(t, env.store, "/photos/dupe.jpg", "hash-dupe")
	if err := env.store.SetExclusion(ctx, item.ID, true, false, "duplicate"); err != nil {
		t.Fatalf("SetExclusion: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "include", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue include: %v", err)
	}
	requireContains(t, out, "Included 1 items")

	updated, err := env.store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.ExcludedFromUpload {
		t.Fatal("expected item to be uploadable again")
	}
}

func TestQueueShow(t *testing.T) {
	env := setupCLITestEnv(t)

	item := testsupport.NewItem(t, env.store, "/photos/gamma.jpg", "hash-gamma")

	out, _, err := runCLI(t, []string{"queue", "show", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "/photos/gamma.jpg")
	requireContains(t, out, "hash-gamma")
	_ = item

	if _, _, err := runCLI(t, []string{"queue", "show", "999"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

func TestQueueRemoveAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	first := testsupport.NewItem(t, env.store, "/photos/a.jpg", "hash-a")
	testsupport.NewItem(t, env.store, "/photos/b.jpg", "hash-b")

	out, _, err := runCLI(t, []string{"queue", "remove", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed 1 items")

	remaining, err := env.store.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if remaining != nil {
		t.Fatal("expected item removed")
	}

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 queue items")
}

func TestQueueHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.NewItem(t, env.store, "/photos/a.jpg", "hash-a")

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 1")
	requireContains(t, out, "Pending: 1")
}

func TestDBHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"db", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db health: %v", err)
	}
	requireContains(t, out, "Exists: yes")
	requireContains(t, out, "Integrity: yes")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.NewItem(t, env.store, "/photos/a.jpg", "hash-a")

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon: paused")
	requireContains(t, out, "pending")
}

func TestPauseAndResume(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"resume"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Uploads resumed")

	out, _, err = runCLI(t, []string{"pause"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	requireContains(t, out, "Uploads paused")
}

func TestAddCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	dir := t.TempDir()
	testsupport.WritePNG(t, dir, "shot.png", testsupport.GradientImage(64, 64, 0))

	out, _, err := runCLI(t, []string{"add", dir}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Queued 1 photos")

	items, err := env.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queued item, got %d", len(items))
	}
}

func TestQueueListFallsBackToStoreWhenDaemonOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewItem(t, store, "/photos/offline.jpg", "hash-offline")

	socket := filepath.Join(testsupport.BaseDir(cfg), "missing.sock")
	out, _, err := runCLI(t, []string{"queue", "list"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue list offline: %v", err)
	}
	requireContains(t, out, "offline.jpg")
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(t.TempDir(), "none.sock"), "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(t.TempDir(), "none.sock"), ""); err == nil {
		t.Fatal("expected error without --overwrite")
	}
}
