package dbus

import (
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	// ServiceName is the bus name claimed by voiceclockd.
	ServiceName = "io.github.jmylchreest.VoiceClock"
	// ServicePath is the control object path.
	ServicePath = "/io/github/jmylchreest/VoiceClock"
	// ServiceInterface is the control interface name.
	ServiceInterface = "io.github.jmylchreest.VoiceClock"

	// ErrorInvalidArgument is returned for out-of-range settings.
	ErrorInvalidArgument = ServiceInterface + ".Error.InvalidArgument"
	// ErrorFailed is returned when a request could not be carried out.
	ErrorFailed = ServiceInterface + ".Error.Failed"
)

const (
	// NotificationsName is the freedesktop notification service.
	NotificationsName = "org.freedesktop.Notifications"
	// NotificationsPath is its object path.
	NotificationsPath = "/org/freedesktop/Notifications"
	// NotificationsInterface is its interface.
	NotificationsInterface = "org.freedesktop.Notifications"
)

// Urgency levels as defined by org.freedesktop.Notifications.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// String returns the urgency name.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Toast is a desktop notification sent by voiceclockd.
type Toast struct {
	AppName    string
	ReplacesID uint32
	Icon       string
	Summary    string
	Body       string
	Urgency    Urgency
	Category   string
	Transient  bool
	Timeout    time.Duration // 0 = server default
}

// Hints returns the notification hints for the toast.
func (t *Toast) Hints() map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(t.Urgency)),
		"desktop-entry": dbus.MakeVariant(AppID),
		// The clip is the sound; keep the notification server quiet
		"suppress-sound": dbus.MakeVariant(true),
	}
	if t.Category != "" {
		hints["category"] = dbus.MakeVariant(t.Category)
	}
	if t.Transient {
		hints["transient"] = dbus.MakeVariant(true)
	}
	return hints
}

// ExpireTimeout returns the timeout in the wire format: -1 for the server
// default, otherwise milliseconds.
func (t *Toast) ExpireTimeout() int32 {
	if t.Timeout <= 0 {
		return -1
	}
	return int32(t.Timeout.Milliseconds())
}

// AppID is the desktop entry and default application name.
const AppID = "voiceclock"

// Status is the daemon state reported by GetStatus.
type Status struct {
	Version   string `json:"version"`
	StartedAt int64  `json:"started_at"`

	Language string `json:"language"`
	Interval uint32 `json:"interval"`
	Muted    bool   `json:"muted"`
	Playing  bool   `json:"playing"`

	LastSlot    string `json:"last_slot,omitempty"`
	LastOutcome string `json:"last_outcome,omitempty"`
	LastAt      int64  `json:"last_at,omitempty"`
	NextAt      int64  `json:"next_at"`

	AssetRoot     string `json:"asset_root"`
	MissingClips  uint32 `json:"missing_clips"`
	LastError     string `json:"last_error,omitempty"`
	LastErrorAt   int64  `json:"last_error_at,omitempty"`
	HistoryLength uint32 `json:"history_length"`
}

// Variants encodes the status as a{sv}.
func (s Status) Variants() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"version":        dbus.MakeVariant(s.Version),
		"started_at":     dbus.MakeVariant(s.StartedAt),
		"language":       dbus.MakeVariant(s.Language),
		"interval":       dbus.MakeVariant(s.Interval),
		"muted":          dbus.MakeVariant(s.Muted),
		"playing":        dbus.MakeVariant(s.Playing),
		"last_slot":      dbus.MakeVariant(s.LastSlot),
		"last_outcome":   dbus.MakeVariant(s.LastOutcome),
		"last_at":        dbus.MakeVariant(s.LastAt),
		"next_at":        dbus.MakeVariant(s.NextAt),
		"asset_root":     dbus.MakeVariant(s.AssetRoot),
		"missing_clips":  dbus.MakeVariant(s.MissingClips),
		"last_error":     dbus.MakeVariant(s.LastError),
		"last_error_at":  dbus.MakeVariant(s.LastErrorAt),
		"history_length": dbus.MakeVariant(s.HistoryLength),
	}
}

// StatusFromVariants decodes a{sv} produced by Variants. Unknown or
// mistyped keys are ignored.
func StatusFromVariants(m map[string]dbus.Variant) Status {
	var s Status
	s.Version = variantString(m, "version")
	s.StartedAt = variantInt64(m, "started_at")
	s.Language = variantString(m, "language")
	s.Interval = variantUint32(m, "interval")
	s.Muted = variantBool(m, "muted")
	s.Playing = variantBool(m, "playing")
	s.LastSlot = variantString(m, "last_slot")
	s.LastOutcome = variantString(m, "last_outcome")
	s.LastAt = variantInt64(m, "last_at")
	s.NextAt = variantInt64(m, "next_at")
	s.AssetRoot = variantString(m, "asset_root")
	s.MissingClips = variantUint32(m, "missing_clips")
	s.LastError = variantString(m, "last_error")
	s.LastErrorAt = variantInt64(m, "last_error_at")
	s.HistoryLength = variantUint32(m, "history_length")
	return s
}

func variantString(m map[string]dbus.Variant, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func variantBool(m map[string]dbus.Variant, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

func variantInt64(m map[string]dbus.Variant, key string) int64 {
	if v, ok := m[key]; ok {
		switch val := v.Value().(type) {
		case int64:
			return val
		case int32:
			return int64(val)
		case uint32:
			return int64(val)
		}
	}
	return 0
}

func variantUint32(m map[string]dbus.Variant, key string) uint32 {
	if v, ok := m[key]; ok {
		switch val := v.Value().(type) {
		case uint32:
			return val
		case int32:
			if val >= 0 {
				return uint32(val)
			}
		case byte:
			return uint32(val)
		}
	}
	return 0
}

// ServerInfo identifies the running daemon.
type ServerInfo struct {
	Name    string // "voiceclockd"
	Version string // Build version
}

// DefaultServerInfo returns the default server information.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{
		Name:    "voiceclockd",
		Version: "dev",
	}
}
