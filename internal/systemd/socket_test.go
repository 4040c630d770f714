package systemd

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetListenersWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	require.NoError(t, err)
	assert.False(t, listeners.Activated)
	assert.Nil(t, listeners.Live)
	assert.Nil(t, listeners.Metrics)
}

func TestNotifyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	assert.False(t, IsSystemdService())
	assert.NoError(t, NotifyReady())
	assert.NoError(t, NotifyStopping())
}

func TestRunWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")

	done := make(chan struct{})
	go func() {
		RunWatchdog(context.Background(), zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWatchdog should return when the watchdog is disabled")
	}
}
