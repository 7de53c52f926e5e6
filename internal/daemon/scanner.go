package daemon

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/engine"
	"snapsync/internal/logging"
)

// photoExtensions lists the file types the scanner picks up. Anything else
// in the watch directory is left alone.
var photoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// watchScanner sweeps the configured photos directory on an interval and
// enqueues anything new. Re-submissions are cheap: the engine answers
// AlreadyQueued for paths it has seen with unchanged bytes.
type watchScanner struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine

	kick chan struct{}

	mu      sync.Mutex
	running bool
	quit    chan struct{}
}

func newWatchScanner(cfg *config.Config, logger *slog.Logger, eng *engine.Engine) *watchScanner {
	return &watchScanner{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "watch-scanner"),
		engine: eng,
		kick:   make(chan struct{}, 1),
	}
}

// Start begins the scan loop when watch mode is enabled.
func (s *watchScanner) Start(ctx context.Context) {
	if s == nil || !s.cfg.Watch.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.quit = make(chan struct{})
	s.running = true

	quit := s.quit
	go s.loop(ctx, quit)
	s.logger.Info("watch scanner started",
		logging.String("dir", s.cfg.Paths.PhotosDir),
		logging.Int("interval_seconds", s.cfg.Watch.ScanIntervalSeconds))
}

// Stop halts the scan loop.
func (s *watchScanner) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.quit)
	s.quit = nil
	s.running = false
}

// Kick requests an immediate sweep, used when removable media appears.
func (s *watchScanner) Kick() {
	if s == nil {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *watchScanner) loop(ctx context.Context, quit <-chan struct{}) {
	interval := time.Duration(s.cfg.Watch.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			s.scan(ctx)
		case <-s.kick:
			s.scan(ctx)
		}
	}
}

func (s *watchScanner) scan(ctx context.Context) {
	root := s.cfg.Paths.PhotosDir
	if _, err := os.Stat(root); err != nil {
		s.logger.Debug("watch directory unavailable", logging.String("dir", root), logging.Error(err))
		return
	}

	var enqueued, skipped, failed int
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := photoExtensions[ext]; !ok {
			return nil
		}

		result, enqueueErr := s.engine.Enqueue(ctx, path)
		switch {
		case enqueueErr != nil:
			failed++
			s.logger.Warn("scan enqueue failed", logging.String("path", path), logging.Error(enqueueErr))
		case result.AlreadyQueued:
			skipped++
		default:
			enqueued++
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("watch scan aborted", logging.Error(err))
		return
	}

	if enqueued > 0 || failed > 0 {
		s.logger.Info("watch scan finished",
			logging.Int("enqueued", enqueued),
			logging.Int("already_queued", skipped),
			logging.Int("failed", failed))
	}
}
