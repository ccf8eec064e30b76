package provision

import (
	"context"
	"fmt"

	"wifi-provisiond/internal/netctl"
)

// SavedNetworks lists the wireless profiles known to the host stack.
func (m *Manager) SavedNetworks(ctx context.Context) ([]netctl.Profile, error) {
	return m.gw.Profiles(ctx, m.ifname)
}

// Forget deletes a saved profile by id (the profile name). Deleting the
// profile of the live connection is rejected: the device must never be told
// to delete the only path back to itself. Forgetting an unknown id is an
// error, not a crash.
func (m *Manager) Forget(ctx context.Context, id string) error {
	profiles, err := m.gw.Profiles(ctx, m.ifname)
	if err != nil {
		return err
	}

	var target *netctl.Profile
	for i := range profiles {
		if profiles[i].Name == id {
			target = &profiles[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%q: %w", id, netctl.ErrProfileNotFound)
	}
	if target.Current {
		return ErrCannotForgetActive
	}

	if err := m.gw.DeleteProfile(ctx, target.Name); err != nil {
		return err
	}

	m.logger.Info("forgot network", "id", id, "ssid", target.SSID)
	m.events.Emit(Event{Type: EventNetworkForgotten, Data: map[string]interface{}{
		"id":   id,
		"ssid": target.SSID,
	}})
	return nil
}
