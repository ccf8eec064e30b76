// Package netctl wraps the host's network-management CLI. It is the only
// place in the daemon that spawns subprocesses or parses their output;
// everything above it talks to the Gateway interface.
package netctl

import "context"

// AccessPoint is one network found by a scan.
type AccessPoint struct {
	SSID     string `json:"ssid"`
	Signal   int    `json:"signal"`
	Security string `json:"security"` // "Open", "WPA", "WPA2", "WPA3"
	Band     string `json:"band"`     // "2.4GHz", "5GHz", "" if unknown
}

// LinkStatus is the live state of the wireless interface.
type LinkStatus struct {
	State  string `json:"state"` // raw device state, e.g. "connected", "disconnected"
	SSID   string `json:"ssid,omitempty"`
	IP     string `json:"ip,omitempty"`
	Signal int    `json:"signal,omitempty"`
}

// Connected reports whether the device state indicates an established link.
func (s *LinkStatus) Connected() bool {
	return s.State == "connected"
}

// Profile is a saved wireless connection known to the host network stack.
type Profile struct {
	Name          string `json:"id"`
	SSID          string `json:"ssid"`
	HasCredential bool   `json:"has_credential"`
	Current       bool   `json:"is_current"`
	Disabled      bool   `json:"is_disabled"`
}

// HotspotParams describes the access point the gateway should bring up.
type HotspotParams struct {
	ProfileName string // connection profile name, e.g. "Hotspot"
	SSID        string
	Password    string
	IPAddress   string // CIDR, e.g. "192.168.4.1/24"
	Channel     int
}

// Gateway abstracts the network-management tool. All calls block for at most
// one subprocess round trip; implementations apply their own per-call timeout
// on top of ctx.
type Gateway interface {
	// Interfaces lists wifi-capable device names.
	Interfaces(ctx context.Context) ([]string, error)

	// Scan triggers a rescan and returns visible networks, deduplicated by
	// SSID (best signal wins) and sorted by signal descending.
	Scan(ctx context.Context, ifname string) ([]AccessPoint, error)

	// Status returns the live link state of ifname.
	Status(ctx context.Context, ifname string) (*LinkStatus, error)

	// Connect submits the credential and asks the host stack to bring the
	// connection up. Success here does not mean the link is established;
	// callers must verify via Status.
	Connect(ctx context.Context, ifname, ssid, psk string) error

	// Disconnect drops the active connection on ifname.
	Disconnect(ctx context.Context, ifname string) error

	// Profiles lists saved wireless connections.
	Profiles(ctx context.Context, ifname string) ([]Profile, error)

	// DeleteProfile removes a saved connection by profile name.
	DeleteProfile(ctx context.Context, name string) error

	// ActivateHotspot brings up an access point on ifname.
	ActivateHotspot(ctx context.Context, ifname string, p HotspotParams) error

	// HotspotActive verifies the hotspot profile is actually activated on
	// ifname, not merely that the launch command returned 0.
	HotspotActive(ctx context.Context, ifname, profileName string) (bool, error)
}
