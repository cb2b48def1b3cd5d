package dbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Path      = "/org/freedesktop/login1"
)

// SleepMonitor watches logind's PrepareForSleep signal on the system bus.
type SleepMonitor struct {
	conn   *dbus.Conn
	logger *slog.Logger

	mu       sync.Mutex
	onResume func()
	onSleep  func()
	signals  chan *dbus.Signal
	done     chan struct{}
}

// NewSleepMonitor creates a new sleep monitor.
func NewSleepMonitor(logger *slog.Logger) *SleepMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SleepMonitor{
		logger: logger,
	}
}

// SetResumeHandler sets the callback run after the system resumes.
func (m *SleepMonitor) SetResumeHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResume = handler
}

// SetSleepHandler sets the callback run just before the system sleeps.
func (m *SleepMonitor) SetSleepHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSleep = handler
}

// Start subscribes to PrepareForSleep.
func (m *SleepMonitor) Start() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to subscribe to PrepareForSleep: %w", err)
	}

	m.conn = conn
	m.signals = make(chan *dbus.Signal, 8)
	m.done = make(chan struct{})
	conn.Signal(m.signals)

	go m.processSignals()

	m.logger.Info("watching logind for suspend/resume")
	return nil
}

// processSignals reads signals until the connection closes.
func (m *SleepMonitor) processSignals() {
	defer close(m.done)
	for sig := range m.signals {
		m.handleSignal(sig)
	}
}

// handleSignal dispatches one PrepareForSleep(b) signal.
func (m *SleepMonitor) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != login1Interface+".PrepareForSleep" {
		return
	}
	if len(sig.Body) < 1 {
		m.logger.Warn("malformed PrepareForSleep signal", "body_len", len(sig.Body))
		return
	}
	start, ok := sig.Body[0].(bool)
	if !ok {
		m.logger.Warn("invalid PrepareForSleep argument type")
		return
	}

	m.mu.Lock()
	onResume, onSleep := m.onResume, m.onSleep
	m.mu.Unlock()

	if start {
		m.logger.Debug("system is going to sleep")
		if onSleep != nil {
			onSleep()
		}
		return
	}

	m.logger.Info("system resumed")
	if onResume != nil {
		onResume()
	}
}

// Stop closes the system bus connection.
func (m *SleepMonitor) Stop() error {
	if m.conn == nil {
		return nil
	}
	m.conn.RemoveSignal(m.signals)
	close(m.signals)
	err := m.conn.Close()
	<-m.done
	m.conn = nil
	return err
}
