package dbus

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
)

// ErrNotConnected is returned when emitting without a bus connection.
var ErrNotConnected = errors.New("not connected to D-Bus")

// EmitSettingsChanged emits the SettingsChanged signal.
func (s *ControlServer) EmitSettingsChanged(settings config.Settings) error {
	err := s.emit("SettingsChanged", string(settings.Language), uint32(settings.Interval), settings.Muted)
	if err != nil {
		return fmt.Errorf("failed to emit SettingsChanged signal: %w", err)
	}

	s.logger.Debug("emitted SettingsChanged signal",
		"language", settings.Language, "interval", int(settings.Interval), "muted", settings.Muted)
	return nil
}

// EmitAnnounced emits the Announced signal.
func (s *ControlServer) EmitAnnounced(a *model.Announcement) error {
	err := s.emit("Announced", a.Slot, a.Language, string(a.Outcome))
	if err != nil {
		return fmt.Errorf("failed to emit Announced signal: %w", err)
	}

	s.logger.Debug("emitted Announced signal", "slot", a.Slot, "outcome", a.Outcome)
	return nil
}

// Record emits Announced for every finished announcement. A server that
// has not been started records nothing.
func (s *ControlServer) Record(a *model.Announcement) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		return nil
	}
	return s.EmitAnnounced(a)
}
