package systemd

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// Listeners holds the systemd-activated sockets. Names come from
// FileDescriptorName= in puttstep.socket.
type Listeners struct {
	Live      net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves socket-activated listeners. Both are nil when the
// process was not socket activated.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	if len(activation.Files(false)) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if lns, ok := named["live"]; ok && len(lns) > 0 {
		listeners.Live = lns[0]
	}
	if lns, ok := named["metrics"]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}
	return listeners, nil
}

func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("sd_notify %s: %w", state, err)
	}
	return nil
}

// NotifyReady tells systemd the service has finished starting up.
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping tells systemd the service is shutting down.
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// IsSystemdService reports whether a notify socket was provided.
func IsSystemdService() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}

// RunWatchdog pings the systemd watchdog at half its interval until ctx
// is done. It returns immediately when the watchdog is not enabled.
func RunWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := notify(daemon.SdNotifyWatchdog); err != nil {
				logger.Warn().Err(err).Msg("Watchdog notification failed")
			}
		}
	}
}
