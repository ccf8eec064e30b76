package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wifi-provisiond/internal/netctl"
	"wifi-provisiond/internal/store"
)

// Connect runs the bounded retry loop for a single credential. It is
// synchronous: it returns only after success or after every attempt has
// failed and the previous configuration has been restored. A second call
// while one is in flight is rejected immediately, never queued.
func (m *Manager) Connect(ctx context.Context, ssid, password string) (*ConnectResult, error) {
	if !m.opMu.TryLock() {
		return nil, ErrAttemptInProgress
	}
	defer m.opMu.Unlock()

	m.connecting.Store(true)
	defer m.connecting.Store(false)

	started := time.Now()
	m.logger.Info("connect requested", "ssid", ssid)
	m.events.Emit(Event{Type: EventConnectStarted, Data: map[string]interface{}{
		"ssid": ssid,
	}})

	// Snapshot the pre-attempt state so exhaustion can roll back.
	wasHotspot := m.mode.Present()
	prevProfile := ""
	if !wasHotspot {
		if profiles, err := m.gw.Profiles(ctx, m.ifname); err == nil {
			for _, p := range profiles {
				if p.Current {
					prevProfile = p.SSID
					break
				}
			}
		}
	}

	attempts := m.cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt-1 < len(m.cfg.Backoff) {
			if err := sleep(ctx, m.cfg.Backoff[attempt-1]); err != nil {
				lastErr = err
				break
			}
		}

		m.logger.Info("connection attempt", "ssid", ssid, "attempt", attempt, "of", attempts)
		m.events.Emit(Event{Type: EventConnectAttempt, Data: map[string]interface{}{
			"ssid":    ssid,
			"attempt": attempt,
			"of":      attempts,
		}})

		st, err := m.attempt(ctx, ssid, password)
		if err == nil {
			return m.commitConnect(ssid, st, attempt, wasHotspot, started), nil
		}
		lastErr = err
		m.logger.Warn("connection attempt failed", "ssid", ssid, "attempt", attempt, "err", err)

		if ctx.Err() != nil {
			break
		}
	}

	m.rollback(ctx, wasHotspot, prevProfile)

	msg := failureMessage(ssid, lastErr)
	m.recordAttempt(&store.AttemptRecord{
		SSID:       ssid,
		Success:    false,
		Attempts:   attempts,
		Message:    msg,
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	m.events.Emit(Event{Type: EventConnectFailed, Data: map[string]interface{}{
		"ssid":    ssid,
		"message": msg,
	}})

	return &ConnectResult{
		Success:  false,
		Message:  msg,
		SSID:     ssid,
		Attempts: attempts,
	}, errors.Join(ErrAllAttemptsFailed, lastErr)
}

// attempt submits the credential and polls until the link is established on
// the target SSID or the per-attempt deadline passes. The success check is
// strict: the gateway reporting no error is not enough, the radio must be in
// the connected state on the requested network.
func (m *Manager) attempt(ctx context.Context, ssid, password string) (*netctl.LinkStatus, error) {
	if err := m.gw.Connect(ctx, m.ifname, ssid, password); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.cfg.AttemptTimeout)
	for {
		st, err := m.gw.Status(ctx, m.ifname)
		if err != nil {
			m.logger.Debug("status poll failed", "err", err)
		} else if st.Connected() && st.SSID == ssid {
			return st, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrConnectionTimeout
		}
		if err := sleep(ctx, m.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// commitConnect finalizes a successful attempt: the marker is cleared so the
// device boots back into client mode, and the result carries the assigned
// address.
func (m *Manager) commitConnect(ssid string, st *netctl.LinkStatus, attempt int, wasHotspot bool, started time.Time) *ConnectResult {
	if err := m.mode.Clear(); err != nil {
		m.logger.Error("clear mode marker after connect", "err", err)
	}

	from := ModeClientConnecting
	if wasHotspot {
		from = ModeHotspot
	}
	m.logger.Info("connected", "ssid", ssid, "ip", st.IP, "attempt", attempt)
	m.recordTransition(from, ModeClientConnected, "connected to "+ssid)
	m.recordAttempt(&store.AttemptRecord{
		SSID:       ssid,
		Success:    true,
		Attempts:   attempt,
		IP:         st.IP,
		Message:    "connected",
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	m.events.Emit(Event{Type: EventConnectSucceeded, Data: map[string]interface{}{
		"ssid": ssid,
		"ip":   st.IP,
	}})
	m.events.Emit(Event{Type: EventModeChanged, Data: map[string]interface{}{
		"mode": string(ModeClientConnected),
		"ssid": ssid,
	}})

	msg := fmt.Sprintf("Connected to %q", ssid)
	if st.IP != "" {
		msg += " (" + st.IP + ")"
	}
	return &ConnectResult{
		Success:  true,
		Message:  msg,
		SSID:     ssid,
		IP:       st.IP,
		Attempts: attempt,
	}
}

// rollbackTimeout bounds the restore after a failed connect. The restore
// cannot run on the caller's deadline.
const rollbackTimeout = 30 * time.Second

// rollback restores the pre-attempt configuration so a failed connect never
// leaves the device with no broadcast and no client link. It runs detached
// from the caller's context: the caller may already be gone (an HTTP client
// that dropped mid-attempt) and the device still has to land in a definite
// mode.
func (m *Manager) rollback(ctx context.Context, wasHotspot bool, prevProfile string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	switch {
	case wasHotspot:
		m.logger.Info("rolling back to hotspot mode")
		if err := m.activateHotspotLocked(ctx); err != nil {
			m.logger.Error("hotspot rollback failed", "err", err)
		}
	case prevProfile != "":
		m.logger.Info("rolling back to previous network", "ssid", prevProfile)
		if err := m.gw.Connect(ctx, m.ifname, prevProfile, ""); err != nil {
			m.logger.Error("profile rollback failed", "ssid", prevProfile, "err", err)
		}
	default:
		// Nothing was active before the attempt; leave the interface to
		// the host stack.
	}
}

// failureMessage maps the last attempt error onto a short user-facing
// message, distinguishing a rejected credential from an unreachable network
// when the gateway made that distinction.
func failureMessage(ssid string, err error) string {
	switch {
	case errors.Is(err, netctl.ErrBadCredentials):
		return fmt.Sprintf("Wrong password for %q", ssid)
	case errors.Is(err, netctl.ErrSSIDNotFound):
		return fmt.Sprintf("Network %q not found, it may be out of range", ssid)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Connection attempt aborted"
	default:
		return fmt.Sprintf("Could not connect to %q, check the password and signal strength", ssid)
	}
}
