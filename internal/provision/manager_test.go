package provision

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wifi-provisiond/internal/netctl"
)

// fakeGateway implements netctl.Gateway in memory.
type fakeGateway struct {
	mu sync.Mutex

	interfaces    []string
	interfacesErr error

	status    netctl.LinkStatus
	statusErr error

	profiles []netctl.Profile

	connectErr   error
	connectCalls []string // "ssid/psk"
	connectHook  func(ssid, psk string) error

	hotspotActive   bool
	activateErr     error
	activateCalls   int
	verifyAfterUp   bool // ActivateHotspot flips hotspotActive on success
	disconnectCalls int

	deleted []string

	statusCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		interfaces:    []string{"wlan0"},
		status:        netctl.LinkStatus{State: "disconnected"},
		verifyAfterUp: true,
	}
}

func (f *fakeGateway) Interfaces(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interfaces, f.interfacesErr
}

func (f *fakeGateway) Scan(context.Context, string) ([]netctl.AccessPoint, error) {
	return nil, nil
}

func (f *fakeGateway) Status(context.Context, string) (*netctl.LinkStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := f.status
	return &st, nil
}

func (f *fakeGateway) Connect(ctx context.Context, _, ssid, psk string) error {
	// A real gateway runs a subprocess under the context; a dead context
	// fails the call immediately.
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	hook := f.connectHook
	f.connectCalls = append(f.connectCalls, ssid+"/"+psk)
	err := f.connectErr
	f.mu.Unlock()

	if hook != nil {
		return hook(ssid, psk)
	}
	if err != nil {
		return err
	}
	// Success: the link comes up on the requested network.
	f.mu.Lock()
	f.status = netctl.LinkStatus{State: "connected", SSID: ssid, IP: "192.168.1.50", Signal: 70}
	f.hotspotActive = false
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) Disconnect(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.status = netctl.LinkStatus{State: "disconnected"}
	return nil
}

func (f *fakeGateway) Profiles(context.Context, string) ([]netctl.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]netctl.Profile, len(f.profiles))
	copy(out, f.profiles)
	return out, nil
}

func (f *fakeGateway) DeleteProfile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	for i, p := range f.profiles {
		if p.Name == name {
			f.profiles = append(f.profiles[:i], f.profiles[i+1:]...)
			return nil
		}
	}
	return netctl.ErrProfileNotFound
}

func (f *fakeGateway) ActivateHotspot(ctx context.Context, _ string, _ netctl.HotspotParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCalls++
	if f.activateErr != nil {
		return f.activateErr
	}
	if f.verifyAfterUp {
		f.hotspotActive = true
	}
	f.status = netctl.LinkStatus{State: "connected (externally)"}
	return nil
}

func (f *fakeGateway) HotspotActive(ctx context.Context, _, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hotspotActive, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testConfig returns a config with timings shrunk so tests run in
// milliseconds while keeping the stock retry shape.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Interface = "wlan0"
	cfg.MarkerPath = filepath.Join(t.TempDir(), "hotspot_mode")
	cfg.BootTimeout = 50 * time.Millisecond
	cfg.BootPollInterval = 5 * time.Millisecond
	cfg.InterfaceWait = 50 * time.Millisecond
	cfg.AttemptTimeout = 60 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Backoff = []time.Duration{0, 0, 0}
	cfg.Hotspot.Password = "setup-password"
	return cfg
}

func newTestManager(t *testing.T, gw netctl.Gateway, cfg Config) *Manager {
	t.Helper()
	logger := testLogger()
	return New(gw, cfg, NewEventBus(logger), nil, logger)
}

func TestDefaultConfigRetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", cfg.Attempts)
	}
	want := []time.Duration{0, 5 * time.Second, 10 * time.Second}
	if len(cfg.Backoff) != len(want) {
		t.Fatalf("backoff = %v, want %v", cfg.Backoff, want)
	}
	for i := range want {
		if cfg.Backoff[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, cfg.Backoff[i], want[i])
		}
	}
	if cfg.AttemptTimeout != 40*time.Second {
		t.Errorf("attempt timeout = %v, want 40s", cfg.AttemptTimeout)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v, want 2s", cfg.PollInterval)
	}
}

func TestStatusHotspotShortCircuit(t *testing.T) {
	gw := newFakeGateway()
	m := newTestManager(t, gw, testConfig(t))

	if err := m.mode.Set(); err != nil {
		t.Fatal(err)
	}

	st, err := m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode != ModeHotspot {
		t.Errorf("mode = %s, want hotspot", st.Mode)
	}
	if st.SSID != "Radio-Setup" {
		t.Errorf("ssid = %q, want Radio-Setup", st.SSID)
	}
	if st.IP != "192.168.4.1" {
		t.Errorf("ip = %q, want 192.168.4.1", st.IP)
	}
	// Hotspot status comes from local config, never a gateway round trip.
	if gw.statusCalls != 0 {
		t.Errorf("gateway status calls = %d, want 0", gw.statusCalls)
	}
}

func TestStatusClientConnected(t *testing.T) {
	gw := newFakeGateway()
	gw.status = netctl.LinkStatus{State: "connected", SSID: "HomeWiFi", IP: "192.168.1.50", Signal: 64}
	m := newTestManager(t, gw, testConfig(t))

	st, err := m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode != ModeClientConnected {
		t.Errorf("mode = %s, want client_connected", st.Mode)
	}
	if st.SSID != "HomeWiFi" || st.IP != "192.168.1.50" || st.Signal != 64 {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusGatewayErrorIsUnknownNotFatal(t *testing.T) {
	gw := newFakeGateway()
	gw.statusErr = context.DeadlineExceeded
	m := newTestManager(t, gw, testConfig(t))

	st, err := m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode != ModeUnknown {
		t.Errorf("mode = %s, want unknown", st.Mode)
	}
}

func TestModeStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "hotspot_mode")
	ms := NewModeStore(path)

	if ms.Present() {
		t.Error("marker present before Set")
	}
	if err := ms.Set(); err != nil {
		t.Fatal(err)
	}
	if !ms.Present() {
		t.Error("marker absent after Set")
	}

	// Setting twice leaves exactly one marker.
	if err := ms.Set(); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("marker dir entries = %d, want 1", len(entries))
	}

	if err := ms.Clear(); err != nil {
		t.Fatal(err)
	}
	if ms.Present() {
		t.Error("marker present after Clear")
	}
	// Clearing an absent marker is a no-op.
	if err := ms.Clear(); err != nil {
		t.Errorf("clear absent marker: %v", err)
	}
}
