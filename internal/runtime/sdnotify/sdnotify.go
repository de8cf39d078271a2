// Package sdnotify reports service state to systemd (Type=notify units).
// Every call is a no-op when disabled or when NOTIFY_SOCKET is unset.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "holidaybot/pkg/logx"
)

type Notifier struct {
	enabled bool
	log     logx.Logger

	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		enabled:  enabled,
		log:      log,
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form line shown by `systemctl status`.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		n.log.Debug("sd_notify skipped: no notify socket", logx.String("state", state))
	}
}

// Watchdog pings at half of WatchdogSec until ctx is done. It returns at once
// when the unit has no watchdog configured.
func (n *Notifier) Watchdog(ctx context.Context) {
	if n == nil || !n.enabled {
		return
	}
	interval, err := n.watchdog(false)
	if err != nil {
		n.log.Warn("watchdog lookup failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := interval / 2
	n.log.Debug("watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
