package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"groundstation/internal/config"
	"groundstation/internal/logging"
)

// serialPrefixes are the device names a USB flight computer enumerates as.
var serialPrefixes = []string{"/dev/ttyACM", "/dev/ttyUSB"}

// netlinkMonitor listens for udev netlink events and hands newly attached
// serial devices to the ingest worker.
type netlinkMonitor struct {
	logger   *slog.Logger
	handler  func(device string)
	vendorID string
	known    map[string]struct{}

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler func(device string)) *netlinkMonitor {
	if cfg == nil || handler == nil {
		return nil
	}
	known := make(map[string]struct{})
	for _, dev := range cfg.SerialDevices() {
		known[dev] = struct{}{}
	}
	return &netlinkMonitor{
		logger:   logging.NewComponentLogger(logger, "netlink-monitor"),
		handler:  handler,
		vendorID: strings.ToLower(strings.TrimSpace(cfg.Serial.VendorID)),
		known:    known,
	}
}

// Start begins listening for udev netlink events. Connection failure is
// logged and otherwise ignored.
func (m *netlinkMonitor) Start(ctx context.Context) error {
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
		m.logger.Warn("failed to connect to netlink socket; serial device will not follow hotplug",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "replugging the flight computer requires a daemon restart"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.String("vendor_id", m.vendorID),
	)
	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
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

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "serial hotplug may be missed"),
			)
		}
	}
}

// buildMatcher matches tty add events, narrowed to one USB vendor when
// serial.vendor_id is set.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add"
	env := map[string]string{"SUBSYSTEM": "tty"}
	if m.vendorID != "" {
		env["ID_VENDOR_ID"] = m.vendorID
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    env,
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	if !m.accepts(devname) {
		m.logger.Debug("ignoring non-serial tty", logging.String(logging.FieldDevice, devname))
		return
	}

	m.logger.Info("serial device attached",
		logging.String(logging.FieldEventType, "netlink_serial_attached"),
		logging.String(logging.FieldDevice, devname),
		logging.String("vendor_id", uevent.Env["ID_VENDOR_ID"]),
	)
	m.handler(devname)
}

func (m *netlinkMonitor) accepts(devname string) bool {
	if _, ok := m.known[devname]; ok {
		return true
	}
	for _, prefix := range serialPrefixes {
		if strings.HasPrefix(devname, prefix) {
			return true
		}
	}
	return false
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	return "/dev/" + filepath.Base(devpath)
}
