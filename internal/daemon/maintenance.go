package daemon

import (
	"context"
	"time"

	"snapsync/internal/logging"
)

const (
	stopTimeout         = 30 * time.Second
	maintenanceInterval = 24 * time.Hour
)

// runMaintenance performs daily housekeeping: purging completed items past
// retention and trimming old log files. The first pass runs shortly after
// startup so a daemon restarted after a long outage catches up quickly.
func (d *Daemon) runMaintenance(ctx context.Context) {
	timer := time.NewTimer(time.Minute)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		d.maintain(ctx)
		timer.Reset(maintenanceInterval)
	}
}

func (d *Daemon) maintain(ctx context.Context) {
	purged, err := d.engine.PurgeCompleted(ctx)
	if err != nil {
		d.logger.Warn("completed item purge failed", logging.Error(err))
	} else if purged > 0 {
		d.logger.Info("purged completed items", logging.Int64("purged", purged))
	}

	logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{d.logPath},
	})
}
