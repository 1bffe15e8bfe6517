// Package daemon holds process-level concerns of jobd: the single-instance
// pid file lock and systemd readiness notification.
package daemon

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notify sends state to systemd when running under a notify-type unit.
// Outside systemd it does nothing.
func Notify(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		logger.Warn("sd_notify failed", "component", "daemon", "state", state, "error", err)
	case sent:
		logger.Debug("sd_notify sent", "component", "daemon", "state", state)
	}
}

// Ready reports that the control socket is accepting requests.
func Ready(logger *slog.Logger) { Notify(logger, daemon.SdNotifyReady) }

// Stopping reports that shutdown has begun.
func Stopping(logger *slog.Logger) { Notify(logger, daemon.SdNotifyStopping) }
