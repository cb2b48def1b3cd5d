package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/voiceclock/internal/config"
)

// ErrDaemonNotRunning is returned when no process owns ServiceName.
var ErrDaemonNotRunning = errors.New("voiceclockd is not running")

// NotificationClient sends toasts to the desktop notification server.
type NotificationClient struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger
}

// NewNotificationClient creates a client on conn.
func NewNotificationClient(conn *dbus.Conn, logger *slog.Logger) *NotificationClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationClient{
		conn:   conn,
		obj:    conn.Object(NotificationsName, NotificationsPath),
		logger: logger,
	}
}

// Notify shows a toast and returns the server-assigned ID.
func (c *NotificationClient) Notify(t Toast) (uint32, error) {
	appName := t.AppName
	if appName == "" {
		appName = AppID
	}

	var id uint32
	err := c.obj.Call(NotificationsInterface+".Notify", 0,
		appName,
		t.ReplacesID,
		t.Icon,
		t.Summary,
		t.Body,
		[]string{},
		t.Hints(),
		t.ExpireTimeout(),
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}

	c.logger.Debug("notification sent", "id", id, "summary", t.Summary, "urgency", t.Urgency.String())
	return id, nil
}

// CloseNotification withdraws a toast.
func (c *NotificationClient) CloseNotification(id uint32) error {
	if err := c.obj.Call(NotificationsInterface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("failed to close notification %d: %w", id, err)
	}
	return nil
}

// ControlClient calls the daemon's control service.
type ControlClient struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewControlClient creates a control client on conn.
func NewControlClient(conn *dbus.Conn) *ControlClient {
	return &ControlClient{
		conn: conn,
		obj:  conn.Object(ServiceName, ServicePath),
	}
}

// ConnectControl connects to the session bus and returns a client, or
// ErrDaemonNotRunning if the daemon has not claimed its name.
func ConnectControl(ctx context.Context) (*ControlClient, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	c := NewControlClient(conn)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Ping checks that the daemon owns its bus name.
func (c *ControlClient) Ping(ctx context.Context) error {
	var hasOwner bool
	err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, ServiceName).Store(&hasOwner)
	if err != nil {
		return fmt.Errorf("failed to query bus: %w", err)
	}
	if !hasOwner {
		return ErrDaemonNotRunning
	}
	return nil
}

// Settings returns the daemon's current settings.
func (c *ControlClient) Settings(ctx context.Context) (config.Settings, error) {
	var (
		language string
		interval uint32
		muted    bool
	)
	if err := c.call(ctx, "GetSettings").Store(&language, &interval, &muted); err != nil {
		return config.Settings{}, callError("GetSettings", err)
	}
	return config.Settings{
		Language: config.Language(language),
		Interval: config.Interval(interval),
		Muted:    muted,
	}, nil
}

// SetLanguage changes the announcement language.
func (c *ControlClient) SetLanguage(ctx context.Context, lang config.Language) error {
	return callError("SetLanguage", c.call(ctx, "SetLanguage", string(lang)).Err)
}

// SetInterval changes the announcement interval.
func (c *ControlClient) SetInterval(ctx context.Context, interval config.Interval) error {
	return callError("SetInterval", c.call(ctx, "SetInterval", uint32(interval)).Err)
}

// SetMuted mutes or unmutes announcements.
func (c *ControlClient) SetMuted(ctx context.Context, muted bool) error {
	return callError("SetMuted", c.call(ctx, "SetMuted", muted).Err)
}

// ToggleMute flips the mute flag and returns the new value.
func (c *ControlClient) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	if err := c.call(ctx, "ToggleMute").Store(&muted); err != nil {
		return false, callError("ToggleMute", err)
	}
	return muted, nil
}

// AnnounceResult describes a forced announcement.
type AnnounceResult struct {
	Slot    string
	Outcome string
	Path    string
}

// AnnounceNow asks the daemon to play the current time.
func (c *ControlClient) AnnounceNow(ctx context.Context) (AnnounceResult, error) {
	var res AnnounceResult
	if err := c.call(ctx, "AnnounceNow").Store(&res.Slot, &res.Outcome, &res.Path); err != nil {
		return res, callError("AnnounceNow", err)
	}
	return res, nil
}

// Status returns the daemon state.
func (c *ControlClient) Status(ctx context.Context) (Status, error) {
	var m map[string]dbus.Variant
	if err := c.call(ctx, "GetStatus").Store(&m); err != nil {
		return Status{}, callError("GetStatus", err)
	}
	return StatusFromVariants(m), nil
}

func (c *ControlClient) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.obj.CallWithContext(ctx, ServiceInterface+"."+method, 0, args...)
}

// callError unwraps D-Bus errors into their message.
func callError(method string, err error) error {
	if err == nil {
		return nil
	}
	var derr dbus.Error
	if errors.As(err, &derr) {
		if len(derr.Body) > 0 {
			if msg, ok := derr.Body[0].(string); ok {
				return fmt.Errorf("%s: %s", method, msg)
			}
		}
		return fmt.Errorf("%s: %s", method, derr.Name)
	}
	return fmt.Errorf("%s: %w", method, err)
}
