package netctl

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// scriptedRunner returns canned output keyed on a space-joined args prefix.
type scriptedRunner struct {
	responses map[string]scriptedResponse
	calls     []string
}

type scriptedResponse struct {
	stdout string
	stderr string
	err    error
}

func (r *scriptedRunner) run(_ context.Context, args ...string) (string, string, error) {
	call := strings.Join(args, " ")
	r.calls = append(r.calls, call)
	for prefix, resp := range r.responses {
		if strings.HasPrefix(call, prefix) {
			return resp.stdout, resp.stderr, resp.err
		}
	}
	return "", "", nil
}

func newTestNMCLI(t *testing.T, r *scriptedRunner) *NMCLI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewNMCLI(logger, withRunner(r.run))
}

func TestInterfaces(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f DEVICE,TYPE device status": {stdout: "wlan0:wifi\neth0:ethernet\nlo:loopback\n"},
	}}
	n := newTestNMCLI(t, r)

	devs, err := n.Interfaces(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 1 || devs[0] != "wlan0" {
		t.Errorf("interfaces = %v, want [wlan0]", devs)
	}
}

func TestInterfacesNoWifi(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f DEVICE,TYPE device status": {stdout: "eth0:ethernet\n"},
	}}
	n := newTestNMCLI(t, r)

	_, err := n.Interfaces(context.Background())
	if !errors.Is(err, ErrNoWifiDevice) {
		t.Errorf("err = %v, want ErrNoWifiDevice", err)
	}
}

func TestStatusConnected(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f DEVICE,STATE,CONNECTION device status": {stdout: "wlan0:connected:HomeWiFi\neth0:unavailable:\n"},
		"-t -f IN-USE,SSID,SIGNAL device wifi list":   {stdout: " :Guest:60\n*:HomeWiFi:75\n"},
		"-t -f IP4.ADDRESS device show wlan0":         {stdout: "IP4.ADDRESS[1]:192.168.1.42/24\n"},
	}}
	n := newTestNMCLI(t, r)

	st, err := n.Status(context.Background(), "wlan0")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Connected() {
		t.Fatal("expected connected status")
	}
	if st.SSID != "HomeWiFi" {
		t.Errorf("ssid = %q, want HomeWiFi", st.SSID)
	}
	if st.IP != "192.168.1.42" {
		t.Errorf("ip = %q, want 192.168.1.42", st.IP)
	}
	if st.Signal != 75 {
		t.Errorf("signal = %d, want 75", st.Signal)
	}
}

func TestStatusDisconnected(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f DEVICE,STATE,CONNECTION device status": {stdout: "wlan0:disconnected:\n"},
	}}
	n := newTestNMCLI(t, r)

	st, err := n.Status(context.Background(), "wlan0")
	if err != nil {
		t.Fatal(err)
	}
	if st.Connected() {
		t.Error("expected disconnected status")
	}
	// No follow-up queries when the link is down.
	if len(r.calls) != 1 {
		t.Errorf("calls = %d, want 1 (%v)", len(r.calls), r.calls)
	}
}

func TestConnectNewNetwork(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f NAME,TYPE,DEVICE connection show": {stdout: "Wired connection 1:802-3-ethernet:eth0\n"},
	}}
	n := newTestNMCLI(t, r)

	if err := n.Connect(context.Background(), "wlan0", "HomeWiFi", "secret123"); err != nil {
		t.Fatal(err)
	}

	last := r.calls[len(r.calls)-1]
	want := "device wifi connect HomeWiFi password secret123 ifname wlan0"
	if last != want {
		t.Errorf("last call = %q, want %q", last, want)
	}
}

func TestConnectExistingProfile(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f NAME,TYPE,DEVICE connection show":                 {stdout: "HomeWiFi:802-11-wireless:\n"},
		"-t -f 802-11-wireless.ssid,802-11-wireless-security.key-mgmt connection show HomeWiFi": {
			stdout: "802-11-wireless.ssid:HomeWiFi\n802-11-wireless-security.key-mgmt:wpa-psk\n",
		},
	}}
	n := newTestNMCLI(t, r)

	if err := n.Connect(context.Background(), "wlan0", "HomeWiFi", "newsecret"); err != nil {
		t.Fatal(err)
	}

	var sawModify, sawUp bool
	for _, c := range r.calls {
		if strings.HasPrefix(c, "connection modify HomeWiFi wifi-sec.key-mgmt wpa-psk wifi-sec.psk newsecret") {
			sawModify = true
		}
		if strings.HasPrefix(c, "connection up HomeWiFi ifname wlan0") {
			sawUp = true
		}
	}
	if !sawModify || !sawUp {
		t.Errorf("modify/up not issued, calls = %v", r.calls)
	}
}

func TestConnectBadPassword(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f NAME,TYPE,DEVICE connection show": {stdout: ""},
		"device wifi connect": {
			stderr: "Error: Connection activation failed: Secrets were required, but not provided.",
			err:    errors.New("exit status 4"),
		},
	}}
	n := newTestNMCLI(t, r)

	err := n.Connect(context.Background(), "wlan0", "HomeWiFi", "wrong")
	if !errors.Is(err, ErrBadCredentials) {
		t.Errorf("err = %v, want ErrBadCredentials", err)
	}
}

func TestProfiles(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f NAME,TYPE,DEVICE connection show": {
			stdout: "HomeWiFi:802-11-wireless:wlan0\nCafe:802-11-wireless:\nWired connection 1:802-3-ethernet:eth0\n",
		},
		"-t -f 802-11-wireless.ssid,802-11-wireless-security.key-mgmt connection show HomeWiFi": {
			stdout: "802-11-wireless.ssid:HomeWiFi\n802-11-wireless-security.key-mgmt:wpa-psk\n",
		},
		"-t -f 802-11-wireless.ssid,802-11-wireless-security.key-mgmt connection show Cafe": {
			stdout: "802-11-wireless.ssid:Cafe Guest\n802-11-wireless-security.key-mgmt:\n",
		},
	}}
	n := newTestNMCLI(t, r)

	profiles, err := n.Profiles(context.Background(), "wlan0")
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("profiles = %d, want 2", len(profiles))
	}
	if !profiles[0].Current {
		t.Error("HomeWiFi should be current")
	}
	if !profiles[0].HasCredential {
		t.Error("HomeWiFi should have a credential")
	}
	if profiles[1].SSID != "Cafe Guest" {
		t.Errorf("ssid = %q, want %q", profiles[1].SSID, "Cafe Guest")
	}
	if profiles[1].Current || profiles[1].HasCredential {
		t.Error("Cafe should be neither current nor secured")
	}
}

func TestDeleteProfileNotFound(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"connection delete id Ghost": {
			stderr: "Error: unknown connection 'Ghost'.",
			err:    errors.New("exit status 10"),
		},
	}}
	n := newTestNMCLI(t, r)

	err := n.DeleteProfile(context.Background(), "Ghost")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestActivateHotspotOmitsEmptyPassword(t *testing.T) {
	r := &scriptedRunner{}
	n := newTestNMCLI(t, r)

	err := n.ActivateHotspot(context.Background(), "wlan0", HotspotParams{
		ProfileName: "Hotspot",
		SSID:        "Radio-Setup",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := "device wifi hotspot ifname wlan0 con-name Hotspot ssid Radio-Setup"
	if r.calls[0] != want {
		t.Errorf("launch call = %q, want %q", r.calls[0], want)
	}
}

func TestHotspotActive(t *testing.T) {
	r := &scriptedRunner{responses: map[string]scriptedResponse{
		"-t -f NAME,DEVICE connection show --active": {stdout: "Hotspot:wlan0\nWired connection 1:eth0\n"},
	}}
	n := newTestNMCLI(t, r)

	active, err := n.HotspotActive(context.Background(), "wlan0", "Hotspot")
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("hotspot should be active")
	}

	active, err = n.HotspotActive(context.Background(), "wlan0", "Other")
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("unknown profile should not be active")
	}
}
