package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"snapsync/internal/config"
	"snapsync/internal/logging"
)

// deviceMonitor listens for udev netlink events and kicks the watch scanner
// when removable storage (a camera or card reader) shows up, so photos are
// picked up the moment the media mounts instead of on the next timed sweep.
type deviceMonitor struct {
	cfg     *config.Config
	logger  *slog.Logger
	scanner *watchScanner

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newDeviceMonitor(cfg *config.Config, logger *slog.Logger, scanner *watchScanner) *deviceMonitor {
	if cfg == nil || !cfg.Watch.Enabled || !cfg.Watch.DeviceEvents {
		return nil
	}
	return &deviceMonitor{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "device-monitor"),
		scanner: scanner,
	}
}

// Start begins listening for udev netlink events.
func (m *deviceMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; media detection will rely on timed scans",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "immediate media detection unavailable"),
		)
		return nil // Non-fatal, timed scans still run
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("device monitor started",
		logging.String(logging.FieldEventType, "device_monitor_started"))
	return nil
}

// Stop shuts down the device monitor.
func (m *deviceMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("device monitor stopped",
		logging.String(logging.FieldEventType, "device_monitor_stopped"))
}

// Running reports whether the device monitor is active.
func (m *deviceMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *deviceMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("device monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "device_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "media detection may be affected"),
			)
		}
	}
}

// buildMatcher selects block device additions: newly attached storage.
func (m *deviceMonitor) buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}

func (m *deviceMonitor) handleEvent(uevent netlink.UEvent) {
	devname := uevent.Env["DEVNAME"]
	if devname == "" {
		if devpath := uevent.Env["DEVPATH"]; devpath != "" {
			parts := strings.Split(devpath, "/")
			devname = "/dev/" + parts[len(parts)-1]
		}
	}

	m.logger.Info("storage device detected",
		logging.String(logging.FieldEventType, "device_detected"),
		logging.String("device", devname),
		logging.String("action", string(uevent.Action)))

	m.scanner.Kick()
}
