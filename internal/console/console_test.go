package console

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wifi-provisiond/internal/netctl"
	"wifi-provisiond/internal/provision"
	"wifi-provisiond/internal/store"
)

type fixedGateway struct {
	status netctl.LinkStatus
}

func (g fixedGateway) Interfaces(context.Context) ([]string, error) { return []string{"wlan0"}, nil }
func (g fixedGateway) Scan(context.Context, string) ([]netctl.AccessPoint, error) {
	return nil, nil
}
func (g fixedGateway) Status(context.Context, string) (*netctl.LinkStatus, error) {
	st := g.status
	return &st, nil
}
func (g fixedGateway) Connect(context.Context, string, string, string) error { return nil }
func (g fixedGateway) Disconnect(context.Context, string) error              { return nil }
func (g fixedGateway) Profiles(context.Context, string) ([]netctl.Profile, error) {
	return nil, nil
}
func (g fixedGateway) DeleteProfile(context.Context, string) error { return nil }
func (g fixedGateway) ActivateHotspot(context.Context, string, netctl.HotspotParams) error {
	return nil
}
func (g fixedGateway) HotspotActive(context.Context, string, string) (bool, error) {
	return false, nil
}

func newTestConsole(t *testing.T, history store.Store) *Console {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := provision.DefaultConfig()
	cfg.Interface = "wlan0"
	cfg.MarkerPath = filepath.Join(t.TempDir(), "hotspot_mode")
	gw := fixedGateway{status: netctl.LinkStatus{State: "connected", SSID: "HomeWiFi", IP: "192.168.1.50", Signal: 48}}
	mgr := provision.New(gw, cfg, provision.NewEventBus(logger), history, logger)

	return New(mgr, history, Config{Port: "/dev/null"}, "1.2.3", logger)
}

func TestHandleStatus(t *testing.T) {
	c := newTestConsole(t, nil)
	var out bytes.Buffer

	c.handleLine("status", &out)

	s := out.String()
	for _, want := range []string{"mode: client_connected", "ssid: HomeWiFi", "ip: 192.168.1.50", "signal: 48"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestHandleVersionAndHelp(t *testing.T) {
	c := newTestConsole(t, nil)
	var out bytes.Buffer

	c.handleLine("version", &out)
	if !strings.Contains(out.String(), "wifi-provisiond 1.2.3") {
		t.Errorf("version output: %q", out.String())
	}

	out.Reset()
	c.handleLine("HELP", &out)
	if !strings.Contains(out.String(), "status") || !strings.Contains(out.String(), "history") {
		t.Errorf("help output: %q", out.String())
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	c := newTestConsole(t, nil)
	var out bytes.Buffer

	c.handleLine("reboot", &out)
	if !strings.Contains(out.String(), "unknown command: reboot") {
		t.Errorf("output: %q", out.String())
	}

	// Blank lines produce no output.
	out.Reset()
	c.handleLine("", &out)
	if out.Len() != 0 {
		t.Errorf("blank line produced output: %q", out.String())
	}
}

func TestHandleHistory(t *testing.T) {
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now()
	if err := db.AppendAttempt(&store.AttemptRecord{
		SSID: "HomeWiFi", Success: true, Attempts: 1, IP: "192.168.1.50",
		Message: "connected", StartedAt: now.Add(-5 * time.Second), FinishedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	c := newTestConsole(t, db)
	var out bytes.Buffer
	c.handleLine("history", &out)

	s := out.String()
	if !strings.Contains(s, "OK") || !strings.Contains(s, "HomeWiFi") {
		t.Errorf("history output: %q", s)
	}
}

func TestHandleHistoryWithoutStore(t *testing.T) {
	c := newTestConsole(t, nil)
	var out bytes.Buffer
	c.handleLine("history 5", &out)
	if !strings.Contains(out.String(), "history not enabled") {
		t.Errorf("output: %q", out.String())
	}
}

func TestServeOverPipe(t *testing.T) {
	c := newTestConsole(t, nil)

	input := strings.NewReader("status\nhelp\n")
	var out bytes.Buffer

	c.serve(readWriter{input, &out})

	s := out.String()
	if !strings.Contains(s, "console") {
		t.Error("missing banner")
	}
	if !strings.Contains(s, "mode: client_connected") {
		t.Error("missing status output")
	}
	if !strings.Contains(s, "commands:") {
		t.Error("missing help output")
	}
}

type readWriter struct {
	r *strings.Reader
	w *bytes.Buffer
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }
