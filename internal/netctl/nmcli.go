package netctl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const defaultCommandTimeout = 10 * time.Second

// rescanSettle is how long to wait after requesting a rescan before reading
// the list; networks take a few seconds to show up.
const rescanSettle = 3 * time.Second

// runFunc executes the CLI and returns stdout and stderr separately.
// Replaceable in tests so no real commands run.
type runFunc func(ctx context.Context, args ...string) (stdout, stderr string, err error)

// NMCLI implements Gateway on top of NetworkManager's nmcli.
type NMCLI struct {
	timeout time.Duration
	logger  *slog.Logger
	run     runFunc
}

// NMCLIOption configures the NMCLI gateway.
type NMCLIOption func(*NMCLI)

// WithCommandTimeout sets the per-invocation subprocess timeout.
func WithCommandTimeout(d time.Duration) NMCLIOption {
	return func(n *NMCLI) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// withRunner replaces the subprocess runner (tests only).
func withRunner(run runFunc) NMCLIOption {
	return func(n *NMCLI) { n.run = run }
}

// NewNMCLI creates an nmcli-backed gateway.
func NewNMCLI(logger *slog.Logger, opts ...NMCLIOption) *NMCLI {
	n := &NMCLI{
		timeout: defaultCommandTimeout,
		logger:  logger.With("component", "nmcli"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.run == nil {
		n.run = n.execNmcli
	}
	return n
}

func (n *NMCLI) execNmcli(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nmcli", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("nmcli %s: %w", args[0], ctx.Err())
	}
	return stdout.String(), stderr.String(), err
}

func (n *NMCLI) Interfaces(ctx context.Context) ([]string, error) {
	out, _, err := n.run(ctx, "-t", "-f", "DEVICE,TYPE", "device", "status")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var devices []string
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) >= 2 && fields[1] == "wifi" {
			devices = append(devices, fields[0])
		}
	}
	if len(devices) == 0 {
		return nil, ErrNoWifiDevice
	}
	return devices, nil
}

func (n *NMCLI) Scan(ctx context.Context, ifname string) ([]AccessPoint, error) {
	// Trigger a fresh scan; a failure here is non-fatal, the list below
	// still returns the most recent results.
	if _, stderr, err := n.run(ctx, "device", "wifi", "rescan", "ifname", ifname); err != nil {
		n.logger.Warn("wifi rescan failed", "err", err, "stderr", strings.TrimSpace(stderr))
	} else {
		select {
		case <-time.After(rescanSettle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out, stderr, err := n.run(ctx, "-t", "-f", "SSID,SIGNAL,SECURITY,FREQ",
		"device", "wifi", "list", "ifname", ifname, "--rescan", "no")
	if err != nil {
		n.logger.Error("wifi list failed", "err", err, "stderr", strings.TrimSpace(stderr))
		return nil, fmt.Errorf("wifi scan: %w", err)
	}
	return parseScanList(out), nil
}

func (n *NMCLI) Status(ctx context.Context, ifname string) (*LinkStatus, error) {
	out, _, err := n.run(ctx, "-t", "-f", "DEVICE,STATE,CONNECTION", "device", "status")
	if err != nil {
		return nil, fmt.Errorf("device status: %w", err)
	}

	st := &LinkStatus{State: "unavailable"}
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) >= 2 && fields[0] == ifname {
			st.State = fields[1]
			break
		}
	}
	if !st.Connected() {
		return st, nil
	}

	// The connection name is not necessarily the SSID; read the in-use AP.
	if out, _, err := n.run(ctx, "-t", "-f", "IN-USE,SSID,SIGNAL",
		"device", "wifi", "list", "ifname", ifname, "--rescan", "no"); err == nil {
		if ap, ok := parseInUseAP(out); ok {
			st.SSID = ap.SSID
			st.Signal = ap.Signal
		}
	}

	if out, _, err := n.run(ctx, "-t", "-f", "IP4.ADDRESS", "device", "show", ifname); err == nil {
		st.IP = parseIP4Address(out)
	}

	return st, nil
}

func (n *NMCLI) Connect(ctx context.Context, ifname, ssid, psk string) error {
	profiles, err := n.Profiles(ctx, ifname)
	if err != nil {
		return err
	}

	var existing *Profile
	for i := range profiles {
		if profiles[i].SSID == ssid {
			existing = &profiles[i]
			break
		}
	}

	if existing != nil {
		// Refresh the stored secret, then bring the profile up.
		if psk != "" {
			_, stderr, err := n.run(ctx, "connection", "modify", existing.Name,
				"wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", psk)
			if err != nil {
				return classifyConnectError(stderr, err)
			}
		}
		_, stderr, err := n.run(ctx, "connection", "up", existing.Name, "ifname", ifname)
		if err != nil {
			return classifyConnectError(stderr, err)
		}
		return nil
	}

	args := []string{"device", "wifi", "connect", ssid}
	if psk != "" {
		args = append(args, "password", psk)
	}
	args = append(args, "ifname", ifname)
	_, stderr, err := n.run(ctx, args...)
	if err != nil {
		return classifyConnectError(stderr, err)
	}
	return nil
}

func (n *NMCLI) Disconnect(ctx context.Context, ifname string) error {
	_, stderr, err := n.run(ctx, "device", "disconnect", ifname)
	if err != nil {
		n.logger.Warn("disconnect failed", "ifname", ifname, "stderr", strings.TrimSpace(stderr))
		return fmt.Errorf("disconnect %s: %w", ifname, err)
	}
	return nil
}

func (n *NMCLI) Profiles(ctx context.Context, ifname string) ([]Profile, error) {
	out, _, err := n.run(ctx, "-t", "-f", "NAME,TYPE,DEVICE", "connection", "show")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	var profiles []Profile
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) < 3 || fields[1] != "802-11-wireless" {
			continue
		}
		p := Profile{
			Name:    fields[0],
			SSID:    fields[0], // fallback when detail lookup fails
			Current: fields[2] == ifname && ifname != "",
		}

		detail, _, err := n.run(ctx, "-t", "-f",
			"802-11-wireless.ssid,802-11-wireless-security.key-mgmt",
			"connection", "show", p.Name)
		if err == nil {
			for _, dl := range strings.Split(detail, "\n") {
				df := splitTerse(dl)
				if len(df) < 2 {
					continue
				}
				switch df[0] {
				case "802-11-wireless.ssid":
					if df[1] != "" {
						p.SSID = df[1]
					}
				case "802-11-wireless-security.key-mgmt":
					p.HasCredential = df[1] != "" && df[1] != "none"
				}
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (n *NMCLI) DeleteProfile(ctx context.Context, name string) error {
	_, stderr, err := n.run(ctx, "connection", "delete", "id", name)
	if err != nil {
		if strings.Contains(stderr, "unknown connection") || strings.Contains(stderr, "not found") {
			return fmt.Errorf("%s: %w", name, ErrProfileNotFound)
		}
		return fmt.Errorf("delete connection %s: %w", name, err)
	}
	return nil
}

func (n *NMCLI) ActivateHotspot(ctx context.Context, ifname string, p HotspotParams) error {
	args := []string{"device", "wifi", "hotspot",
		"ifname", ifname,
		"con-name", p.ProfileName,
		"ssid", p.SSID,
	}
	// No password runs an open setup hotspot.
	if p.Password != "" {
		args = append(args, "password", p.Password)
	}
	if p.Channel > 0 {
		args = append(args, "band", "bg", "channel", fmt.Sprintf("%d", p.Channel))
	}
	_, stderr, err := n.run(ctx, args...)
	if err != nil {
		n.logger.Error("hotspot launch failed", "stderr", strings.TrimSpace(stderr))
		return fmt.Errorf("start hotspot: %w", err)
	}

	// Pin the AP address; nmcli defaults to 10.42.0.1/24 in shared mode.
	if p.IPAddress != "" {
		if _, stderr, err := n.run(ctx, "connection", "modify", p.ProfileName,
			"ipv4.method", "shared", "ipv4.addresses", p.IPAddress); err != nil {
			n.logger.Error("hotspot address config failed", "stderr", strings.TrimSpace(stderr))
			return fmt.Errorf("configure hotspot address: %w", err)
		}
		if _, stderr, err := n.run(ctx, "connection", "up", p.ProfileName, "ifname", ifname); err != nil {
			n.logger.Error("hotspot reactivate failed", "stderr", strings.TrimSpace(stderr))
			return fmt.Errorf("apply hotspot address: %w", err)
		}
	}
	return nil
}

func (n *NMCLI) HotspotActive(ctx context.Context, ifname, profileName string) (bool, error) {
	out, _, err := n.run(ctx, "-t", "-f", "NAME,DEVICE", "connection", "show", "--active")
	if err != nil {
		return false, fmt.Errorf("list active connections: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) >= 2 && fields[0] == profileName && fields[1] == ifname {
			return true, nil
		}
	}
	return false, nil
}
