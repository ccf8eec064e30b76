package provision

import (
	"context"
	"time"
)

func (m *Manager) bootPoll() time.Duration {
	if m.cfg.BootPollInterval > 0 {
		return m.cfg.BootPollInterval
	}
	return time.Second
}

// Boot runs once at process start and leaves the interface in a definite
// mode: an explicit hotspot marker wins, then an existing saved connection
// that comes up within the boot timeout, then hotspot fallback. With fallback
// administratively disabled the interface is left to whatever the host stack
// negotiated.
func (m *Manager) Boot(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.waitForInterface(ctx); err != nil {
		// Fail soft: a missing radio must not kill the process; the web
		// and serial surfaces stay up for diagnosis.
		m.logger.Error("wireless interface not found", "err", err, "wait", m.cfg.InterfaceWait)
		if m.cfg.FallbackDisabled {
			return nil
		}
		return m.activateHotspotLocked(ctx)
	}
	m.logger.Info("wireless interface ready", "ifname", m.ifname)

	if m.cfg.FallbackDisabled {
		m.logger.Info("boot fallback disabled, leaving interface untouched")
		return nil
	}

	// An operator's explicit hotspot request outlives reboots and takes
	// precedence over any saved credential.
	if m.mode.Present() {
		m.logger.Info("hotspot marker present, staying in hotspot mode")
		return m.activateHotspotLocked(ctx)
	}

	if m.waitForConnection(ctx) {
		return nil
	}

	m.logger.Info("no connection within boot timeout, falling back to hotspot",
		"timeout", m.cfg.BootTimeout)
	return m.activateHotspotLocked(ctx)
}

// waitForInterface polls until a usable wifi device exists or the bounded
// wait expires. It also resolves the interface name when config left it
// empty.
func (m *Manager) waitForInterface(ctx context.Context) error {
	deadline := time.Now().Add(m.cfg.InterfaceWait)
	for {
		devices, err := m.gw.Interfaces(ctx)
		if err == nil && len(devices) > 0 {
			if m.ifname == "" {
				m.ifname = devices[0]
				return nil
			}
			for _, d := range devices {
				if d == m.ifname {
					return nil
				}
			}
		}

		if time.Now().After(deadline) {
			return ErrInterfaceNotFound
		}
		if err := sleep(ctx, m.bootPoll()); err != nil {
			return ErrInterfaceNotFound
		}
	}
}

// waitForConnection polls gateway status every second for up to the boot
// timeout, reporting whether an existing saved connection came up.
func (m *Manager) waitForConnection(ctx context.Context) bool {
	deadline := time.Now().Add(m.cfg.BootTimeout)
	for {
		st, err := m.gw.Status(ctx, m.ifname)
		if err == nil && st.Connected() {
			m.logger.Info("existing connection established", "ssid", st.SSID, "ip", st.IP)
			m.recordTransition(ModeUnknown, ModeClientConnected, "boot: saved connection")
			m.events.Emit(Event{Type: EventModeChanged, Data: map[string]interface{}{
				"mode": string(ModeClientConnected),
				"ssid": st.SSID,
			}})
			return true
		}

		if time.Now().After(deadline) {
			return false
		}
		if err := sleep(ctx, m.bootPoll()); err != nil {
			return false
		}
	}
}
