// Package daemon wires the voiceclockd components together: the
// controller behind the D-Bus control service, the internal toast
// notifier, and hot-reload of the settings and daemon config files.
package daemon
