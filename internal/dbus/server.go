package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
)

// Controller is the daemon side of the control service.
type Controller interface {
	// Settings returns the settings in effect.
	Settings() config.Settings
	// UpdateSettings applies fn to a copy of the settings, validates,
	// persists and publishes the result. changed is false when fn left
	// the settings as they were.
	UpdateSettings(fn func(*config.Settings)) (next config.Settings, changed bool, err error)
	// AnnounceNow plays the current time outside the schedule.
	AnnounceNow(ctx context.Context) (*model.Announcement, error)
	// Status reports the daemon state.
	Status() Status
}

// ControlServer exports the io.github.jmylchreest.VoiceClock interface.
type ControlServer struct {
	conn       *dbus.Conn
	logger     *slog.Logger
	controller Controller

	// Upper bound for AnnounceNow requests
	announceTimeout time.Duration

	// Sends a signal on the control path
	emit func(member string, values ...any) error

	mu         sync.RWMutex
	serverInfo ServerInfo
	running    bool
}

// NewControlServer creates a new ControlServer.
func NewControlServer(controller Controller, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ControlServer{
		logger:          logger,
		controller:      controller,
		announceTimeout: 5 * time.Second,
		serverInfo:      DefaultServerInfo(),
	}
	s.emit = s.busEmit
	return s
}

func (s *ControlServer) busEmit(member string, values ...any) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.Emit(ServicePath, ServiceInterface+"."+member, values...)
}

// SetServerInfo sets the information returned by GetServerInformation.
func (s *ControlServer) SetServerInfo(info ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverInfo = info
}

// Start connects to the session bus and exports the control service.
func (s *ControlServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s.conn = conn

	if err := conn.Export(s, ServicePath, ServiceInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: ServicePath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    ServiceInterface,
				Methods: controlMethods(),
				Signals: controlSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ServicePath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken (is voiceclockd already running?)", ServiceName)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("D-Bus control service started", "name", ServiceName, "path", ServicePath)
	return nil
}

// Stop releases the bus name.
func (s *ControlServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.conn != nil {
		if _, err := s.conn.ReleaseName(ServiceName); err != nil {
			s.logger.Warn("failed to release bus name", "error", err)
		}
		// Don't close the connection as it's shared (SessionBus)
	}

	s.logger.Info("D-Bus control service stopped")
	return nil
}

// Connection returns the underlying D-Bus connection.
func (s *ControlServer) Connection() *dbus.Conn {
	return s.conn
}

// GetServerInformation returns the daemon name and version.
// D-Bus method: GetServerInformation() -> (ss)
func (s *ControlServer) GetServerInformation() (string, string, *dbus.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo.Name, s.serverInfo.Version, nil
}

// GetSettings returns the current settings.
// D-Bus method: GetSettings() -> (sub)
func (s *ControlServer) GetSettings() (string, uint32, bool, *dbus.Error) {
	cur := s.controller.Settings()
	return string(cur.Language), uint32(cur.Interval), cur.Muted, nil
}

// SetLanguage changes the announcement language.
// D-Bus method: SetLanguage(s)
func (s *ControlServer) SetLanguage(language string) *dbus.Error {
	lang, err := config.ParseLanguage(language)
	if err != nil {
		return invalidArgument(err)
	}
	s.logger.Debug("SetLanguage called", "language", lang)
	return s.update(func(cur *config.Settings) { cur.Language = lang })
}

// SetInterval changes the announcement interval in minutes.
// D-Bus method: SetInterval(u)
func (s *ControlServer) SetInterval(minutes uint32) *dbus.Error {
	interval := config.Interval(minutes)
	if !interval.Valid() {
		return invalidArgument(fmt.Errorf("%w: %d", config.ErrInvalidInterval, minutes))
	}
	s.logger.Debug("SetInterval called", "minutes", minutes)
	return s.update(func(cur *config.Settings) { cur.Interval = interval })
}

// SetMuted mutes or unmutes announcements.
// D-Bus method: SetMuted(b)
func (s *ControlServer) SetMuted(muted bool) *dbus.Error {
	s.logger.Debug("SetMuted called", "muted", muted)
	return s.update(func(cur *config.Settings) { cur.Muted = muted })
}

// ToggleMute flips the mute flag and returns the new value.
// D-Bus method: ToggleMute() -> b
func (s *ControlServer) ToggleMute() (bool, *dbus.Error) {
	var muted bool
	if derr := s.update(func(cur *config.Settings) {
		cur.Muted = !cur.Muted
		muted = cur.Muted
	}); derr != nil {
		return false, derr
	}
	return muted, nil
}

// AnnounceNow plays the current time immediately.
// D-Bus method: AnnounceNow() -> (sss) slot, outcome, path
func (s *ControlServer) AnnounceNow() (string, string, string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.announceTimeout)
	defer cancel()

	a, err := s.controller.AnnounceNow(ctx)
	if a == nil {
		if err == nil {
			err = errors.New("no announcement")
		}
		return "", "", "", failed(err)
	}
	if err != nil {
		// The attempt is still reported so the caller can show what was missing
		s.logger.Debug("AnnounceNow failed", "slot", a.Slot, "error", err)
		return a.Slot, string(a.Outcome), a.Path, failed(err)
	}
	return a.Slot, string(a.Outcome), a.Path, nil
}

// GetStatus returns the daemon state.
// D-Bus method: GetStatus() -> a{sv}
func (s *ControlServer) GetStatus() (map[string]dbus.Variant, *dbus.Error) {
	st := s.controller.Status()

	s.mu.RLock()
	if st.Version == "" {
		st.Version = s.serverInfo.Version
	}
	s.mu.RUnlock()

	return st.Variants(), nil
}

// update applies fn through the controller and broadcasts the result.
func (s *ControlServer) update(fn func(*config.Settings)) *dbus.Error {
	next, changed, err := s.controller.UpdateSettings(fn)
	if err != nil {
		if errors.Is(err, config.ErrInvalidLanguage) || errors.Is(err, config.ErrInvalidInterval) {
			return invalidArgument(err)
		}
		return failed(err)
	}
	if !changed {
		return nil
	}

	if err := s.EmitSettingsChanged(next); err != nil {
		s.logger.Debug("SettingsChanged not emitted", "error", err)
	}
	return nil
}

func invalidArgument(err error) *dbus.Error {
	return dbus.NewError(ErrorInvalidArgument, []any{err.Error()})
}

func failed(err error) *dbus.Error {
	return dbus.NewError(ErrorFailed, []any{err.Error()})
}

// controlMethods returns the D-Bus method introspection data.
func controlMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetServerInformation",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "version", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "GetSettings",
			Args: []introspect.Arg{
				{Name: "language", Type: "s", Direction: "out"},
				{Name: "interval", Type: "u", Direction: "out"},
				{Name: "muted", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "SetLanguage",
			Args: []introspect.Arg{
				{Name: "language", Type: "s", Direction: "in"},
			},
		},
		{
			Name: "SetInterval",
			Args: []introspect.Arg{
				{Name: "minutes", Type: "u", Direction: "in"},
			},
		},
		{
			Name: "SetMuted",
			Args: []introspect.Arg{
				{Name: "muted", Type: "b", Direction: "in"},
			},
		},
		{
			Name: "ToggleMute",
			Args: []introspect.Arg{
				{Name: "muted", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "AnnounceNow",
			Args: []introspect.Arg{
				{Name: "slot", Type: "s", Direction: "out"},
				{Name: "outcome", Type: "s", Direction: "out"},
				{Name: "path", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "GetStatus",
			Args: []introspect.Arg{
				{Name: "status", Type: "a{sv}", Direction: "out"},
			},
		},
	}
}

// controlSignals returns the D-Bus signal introspection data.
func controlSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "SettingsChanged",
			Args: []introspect.Arg{
				{Name: "language", Type: "s"},
				{Name: "interval", Type: "u"},
				{Name: "muted", Type: "b"},
			},
		},
		{
			Name: "Announced",
			Args: []introspect.Arg{
				{Name: "slot", Type: "s"},
				{Name: "language", Type: "s"},
				{Name: "outcome", Type: "s"},
			},
		},
	}
}
