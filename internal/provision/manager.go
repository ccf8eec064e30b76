// Package provision implements the connection-management state machine:
// boot-time mode selection, hotspot activation, client-connection attempts
// with bounded retry and rollback, and saved-network bookkeeping.
package provision

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wifi-provisiond/internal/netctl"
	"wifi-provisiond/internal/store"
)

// DeviceMode is the derived operating mode of the device.
type DeviceMode string

const (
	ModeHotspot          DeviceMode = "hotspot"
	ModeClientConnecting DeviceMode = "client_connecting"
	ModeClientConnected  DeviceMode = "client_connected"
	ModeUnknown          DeviceMode = "unknown"
)

// HotspotConfig describes the access point presented in hotspot mode.
// Loaded once at process start and never mutated.
type HotspotConfig struct {
	ProfileName string
	SSID        string
	Password    string
	IPAddress   string // CIDR, e.g. "192.168.4.1/24"
	DHCPRange   string // advisory; the shared-mode DHCP server owns the pool
	Channel     int
}

// Config holds the Manager's timing and policy knobs.
type Config struct {
	Interface        string // empty = first wifi device reported by the gateway
	MarkerPath       string
	BootTimeout      time.Duration // wait for an existing connection before hotspot fallback
	BootPollInterval time.Duration // status poll cadence during the boot wait
	InterfaceWait    time.Duration // wait for the wireless interface to appear at boot
	FallbackDisabled bool          // leave the interface alone at boot, never start the hotspot
	Attempts         int
	AttemptTimeout   time.Duration
	PollInterval     time.Duration
	Backoff          []time.Duration // inter-attempt delays, indexed by attempt-1
	Hotspot          HotspotConfig
}

// DefaultConfig returns the stock retry/timing policy.
func DefaultConfig() Config {
	return Config{
		MarkerPath:       "/var/lib/wifi-provisiond/hotspot_mode",
		BootTimeout:      8 * time.Second,
		BootPollInterval: time.Second,
		InterfaceWait:    10 * time.Second,
		Attempts:         3,
		AttemptTimeout:   40 * time.Second,
		PollInterval:     2 * time.Second,
		Backoff:          []time.Duration{0, 5 * time.Second, 10 * time.Second},
		Hotspot: HotspotConfig{
			ProfileName: "Hotspot",
			SSID:        "Radio-Setup",
			IPAddress:   "192.168.4.1/24",
			DHCPRange:   "192.168.4.10,192.168.4.60",
			Channel:     6,
		},
	}
}

// SystemStatus is the read model merging the mode marker with the live
// gateway state. Recomputed on every query, never cached.
type SystemStatus struct {
	Mode      DeviceMode `json:"mode"`
	Connected bool       `json:"connected"`
	SSID      string     `json:"ssid,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Signal    int        `json:"signal,omitempty"`
}

// ConnectResult is the outcome of a connect request.
type ConnectResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	SSID     string `json:"ssid"`
	IP       string `json:"ip,omitempty"`
	Attempts int    `json:"attempts"`
}

// Manager owns the wireless interface. The interface is a singleton shared
// resource: opMu is the single-flight lock around every interface-mutating
// operation. Status queries never take it.
type Manager struct {
	gw      netctl.Gateway
	cfg     Config
	mode    *ModeStore
	events  *EventBus
	history store.Store
	logger  *slog.Logger

	opMu       sync.Mutex
	connecting atomic.Bool

	// ifname is resolved during Boot, before any other caller runs.
	ifname string
}

// New creates a Manager. history may be nil; recording is then skipped.
func New(gw netctl.Gateway, cfg Config, events *EventBus, history store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		gw:      gw,
		cfg:     cfg,
		mode:    NewModeStore(cfg.MarkerPath),
		events:  events,
		history: history,
		logger:  logger.With("component", "provision"),
		ifname:  cfg.Interface,
	}
}

// Events returns the provisioning event bus.
func (m *Manager) Events() *EventBus {
	return m.events
}

// Mode returns the mode store (reads only; writes go through the Manager).
func (m *Manager) Mode() *ModeStore {
	return m.mode
}

// Hotspot returns the immutable hotspot configuration.
func (m *Manager) Hotspot() HotspotConfig {
	return m.cfg.Hotspot
}

// Interface returns the wireless interface name in use.
func (m *Manager) Interface() string {
	return m.ifname
}

// Scan lists visible networks. Read-only; no single-flight lock.
func (m *Manager) Scan(ctx context.Context) ([]netctl.AccessPoint, error) {
	return m.gw.Scan(ctx, m.ifname)
}

// Status computes the current SystemStatus. When the hotspot marker is
// present it answers from local config without querying the gateway: a live
// query would ride on the hotspot's own network plane.
func (m *Manager) Status(ctx context.Context) (*SystemStatus, error) {
	if m.mode.Present() {
		return &SystemStatus{
			Mode:      ModeHotspot,
			Connected: true,
			SSID:      m.cfg.Hotspot.SSID,
			IP:        stripPrefixLen(m.cfg.Hotspot.IPAddress),
		}, nil
	}

	st, err := m.gw.Status(ctx, m.ifname)
	if err != nil {
		m.logger.Warn("status query failed", "err", err)
		return &SystemStatus{Mode: ModeUnknown}, nil
	}

	out := &SystemStatus{Mode: ModeUnknown}
	switch {
	case st.Connected():
		out.Mode = ModeClientConnected
		out.Connected = true
		out.SSID = st.SSID
		out.IP = st.IP
		out.Signal = st.Signal
	case m.connecting.Load(), isConnectingState(st.State):
		out.Mode = ModeClientConnecting
	}
	return out, nil
}

func isConnectingState(state string) bool {
	switch state {
	case "connecting", "connecting (configuring)", "connecting (getting ip configuration)", "connecting (prepare)":
		return true
	}
	return false
}

func stripPrefixLen(cidr string) string {
	for i := 0; i < len(cidr); i++ {
		if cidr[i] == '/' {
			return cidr[:i]
		}
	}
	return cidr
}

// recordTransition appends a mode transition to history. History is
// advisory; failures are logged and swallowed.
func (m *Manager) recordTransition(from, to DeviceMode, reason string) {
	if m.history == nil {
		return
	}
	err := m.history.AppendTransition(&store.TransitionRecord{
		From:   string(from),
		To:     string(to),
		Reason: reason,
		At:     time.Now(),
	})
	if err != nil {
		m.logger.Warn("record transition", "err", err)
	}
}

func (m *Manager) recordAttempt(rec *store.AttemptRecord) {
	if m.history == nil {
		return
	}
	if err := m.history.AppendAttempt(rec); err != nil {
		m.logger.Warn("record attempt", "err", err)
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
