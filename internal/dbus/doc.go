// Package dbus connects voiceclock to the desktop session.
// It sends toasts through org.freedesktop.Notifications, exports the
// io.github.jmylchreest.VoiceClock control service used by the CLI, and
// watches logind for resume-from-sleep.
package dbus
