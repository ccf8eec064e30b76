package provision

import (
	"context"
	"errors"
	"fmt"

	"wifi-provisiond/internal/netctl"
)

// ActivateHotspot switches the interface into access-point mode. Idempotent:
// if the hotspot is already broadcasting it re-verifies instead of restarting
// the radio, so an in-progress client setup session is not dropped.
func (m *Manager) ActivateHotspot(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.activateHotspotLocked(ctx)
}

// activateHotspotLocked requires opMu to be held.
func (m *Manager) activateHotspotLocked(ctx context.Context) error {
	hs := m.cfg.Hotspot

	if active, err := m.gw.HotspotActive(ctx, m.ifname, hs.ProfileName); err == nil && active {
		m.logger.Info("hotspot already broadcasting", "ssid", hs.SSID)
		if err := m.mode.Set(); err != nil {
			return err
		}
		return nil
	}

	// The marker is written before the radio flips so a crash mid-switch
	// resumes into hotspot mode rather than stranding the device.
	if err := m.mode.Set(); err != nil {
		return err
	}

	if err := m.gw.Disconnect(ctx, m.ifname); err != nil {
		m.logger.Debug("disconnect before hotspot", "err", err)
	}

	params := hotspotParams(hs)
	if err := m.gw.ActivateHotspot(ctx, m.ifname, params); err != nil {
		return errors.Join(ErrHotspotActivation, err)
	}

	// Verify the broadcast actually came up, not just that the launch
	// command exited 0.
	active, err := m.gw.HotspotActive(ctx, m.ifname, hs.ProfileName)
	if err != nil {
		return errors.Join(ErrHotspotActivation, fmt.Errorf("verify hotspot: %w", err))
	}
	if !active {
		return errors.Join(ErrHotspotActivation, errors.New("hotspot profile not active after launch"))
	}

	m.logger.Info("hotspot activated", "ssid", hs.SSID, "ip", hs.IPAddress)
	m.recordTransition(ModeUnknown, ModeHotspot, "hotspot activated")
	m.events.Emit(Event{Type: EventHotspotActivated, Data: map[string]interface{}{
		"ssid": hs.SSID,
		"ip":   stripPrefixLen(hs.IPAddress),
	}})
	m.events.Emit(Event{Type: EventModeChanged, Data: map[string]interface{}{
		"mode": string(ModeHotspot),
	}})
	return nil
}

// ActivateClient hands the interface back to the host network stack. It does
// not pick or join a network; that is Connect's job.
func (m *Manager) ActivateClient(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.activateClientLocked(ctx)
}

// activateClientLocked requires opMu to be held.
func (m *Manager) activateClientLocked(_ context.Context) error {
	if !m.mode.Present() {
		return nil
	}
	if err := m.mode.Clear(); err != nil {
		return err
	}
	m.logger.Info("client mode activated")
	m.recordTransition(ModeHotspot, ModeClientConnecting, "client mode requested")
	m.events.Emit(Event{Type: EventClientActivated, Data: nil})
	m.events.Emit(Event{Type: EventModeChanged, Data: map[string]interface{}{
		"mode": string(ModeClientConnecting),
	}})
	return nil
}

func hotspotParams(hs HotspotConfig) netctl.HotspotParams {
	return netctl.HotspotParams{
		ProfileName: hs.ProfileName,
		SSID:        hs.SSID,
		Password:    hs.Password,
		IPAddress:   hs.IPAddress,
		Channel:     hs.Channel,
	}
}
