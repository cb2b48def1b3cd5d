package daemon

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
	"github.com/jmylchreest/voiceclock/internal/model"
)

// NotificationLevel indicates the urgency/severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency).
	NotificationLevelError
)

// ToastSender delivers a toast to the desktop notification server.
type ToastSender interface {
	Notify(t dbus.Toast) (uint32, error)
}

// InternalNotifier raises desktop toasts for voiceclockd events.
// Toasts with the same key are rate limited.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	sender ToastSender

	// Rate limiting
	lastNotifyTime map[string]time.Time // key -> last notification time
	minInterval    time.Duration        // minimum time between same notifications

	announcements bool          // toast on each played announcement
	settingsSaved bool          // toast when settings change
	timeout       time.Duration // toast expiry

	// ID of the last announcement toast, replaced by the next one
	lastAnnounceID uint32
}

// NewInternalNotifier creates a new InternalNotifier.
func NewInternalNotifier(sender ToastSender, logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		sender:         sender,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second, // Don't repeat same notification within 5 seconds
		announcements:  true,
		settingsSaved:  true,
		timeout:        5 * time.Second,
	}
}

// ApplyConfig takes the toast settings from cfg.
func (n *InternalNotifier) ApplyConfig(cfg config.NotificationsConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announcements = cfg.Enabled
	n.settingsSaved = cfg.SettingsSaved
	n.timeout = cfg.Timeout.Duration()
}

// SetMinInterval sets the minimum interval between duplicate notifications.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify sends a toast if not rate-limited. The same key won't notify
// again within minInterval.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifyLocked(key, summary, body, level, 0)
}

func (n *InternalNotifier) notifyLocked(key, summary, body string, level NotificationLevel, replaces uint32) uint32 {
	if n.sender == nil {
		n.logger.Debug("internal notification skipped: no sender", "summary", summary)
		return 0
	}

	if lastTime, ok := n.lastNotifyTime[key]; ok {
		if time.Since(lastTime) < n.minInterval {
			n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
			return 0
		}
	}
	n.lastNotifyTime[key] = time.Now()

	toast := dbus.Toast{
		AppName:    dbus.AppID,
		ReplacesID: replaces,
		Summary:    summary,
		Body:       body,
		Transient:  true,
		Timeout:    n.timeout,
	}

	switch level {
	case NotificationLevelInfo:
		toast.Urgency = dbus.UrgencyLow
		toast.Icon = "dialog-information"
	case NotificationLevelWarning:
		toast.Urgency = dbus.UrgencyNormal
		toast.Icon = "dialog-warning"
	case NotificationLevelError:
		toast.Urgency = dbus.UrgencyCritical
		toast.Icon = "dialog-error"
	}

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)

	id, err := n.sender.Notify(toast)
	if err != nil {
		n.logger.Warn("failed to send notification", "summary", summary, "error", err)
		return 0
	}
	return id
}

// NotifyAnnouncement raises "It's 12:30" for a played announcement.
func (n *InternalNotifier) NotifyAnnouncement(a *model.Announcement) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.announcements {
		return
	}

	id := n.notifyLocked("announce:"+a.ID, "It's "+a.Slot, "", NotificationLevelInfo, n.lastAnnounceID)
	if id != 0 {
		n.lastAnnounceID = id
	}
}

// NotifyMissingAsset reports a hole in the asset library.
func (n *InternalNotifier) NotifyMissingAsset(err error) {
	n.Notify(
		"missing-asset",
		"Missing Announcement",
		err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyPlaybackError reports a clip that could not be played.
func (n *InternalNotifier) NotifyPlaybackError(path string, err error) {
	n.Notify(
		"playback-error",
		"Playback Error",
		fmt.Sprintf("Failed to play %s: %v", path, err),
		NotificationLevelWarning,
	)
}

// NotifySettingsSaved confirms a settings change.
func (n *InternalNotifier) NotifySettingsSaved(s config.Settings) {
	n.mu.Lock()
	enabled := n.settingsSaved
	n.mu.Unlock()

	if !enabled {
		return
	}

	body := fmt.Sprintf("%s, %s", s.Language.DisplayName(), s.Interval)
	if s.Muted {
		body += ", muted"
	}
	n.Notify("settings-saved", "Settings Saved", body, NotificationLevelInfo)
}

// NotifySettingsError reports a settings file that failed validation.
func (n *InternalNotifier) NotifySettingsError(err error) {
	n.Notify(
		"settings-error",
		"Settings Error",
		"Keeping previous settings: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyConfigReloaded sends a notification about config being reloaded.
func (n *InternalNotifier) NotifyConfigReloaded() {
	n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"voiceclockd configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError sends a notification about config validation error.
func (n *InternalNotifier) NotifyConfigError(err error) {
	n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyAssetsIncomplete warns that clips are missing at startup.
func (n *InternalNotifier) NotifyAssetsIncomplete(language config.Language, missing int) {
	n.Notify(
		"assets-incomplete",
		"Incomplete Announcements",
		fmt.Sprintf("%d clips missing for %s. Run 'voiceclock assets verify' for details.", missing, language.DisplayName()),
		NotificationLevelWarning,
	)
}

// NotifyStartup sends a notification that the daemon has started.
func (n *InternalNotifier) NotifyStartup(version string, s config.Settings) {
	n.Notify(
		"startup",
		"Voice Clock Started",
		fmt.Sprintf("voiceclockd v%s announcing %s in %s.", version, strings.ToLower(s.Interval.String()), s.Language.DisplayName()),
		NotificationLevelInfo,
	)
}
