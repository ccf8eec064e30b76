package netctl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// splitTerse splits one line of `nmcli -t` output on unescaped colons.
// nmcli escapes literal colons and backslashes in field values with a
// backslash.
func splitTerse(line string) []string {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil
	}
	var fields []string
	var b strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	fields = append(fields, b.String())
	return fields
}

// parseScanList parses `nmcli -t -f SSID,SIGNAL,SECURITY,FREQ device wifi list`.
// Hidden networks (empty SSID) are skipped; duplicate SSIDs keep the best
// signal; results are sorted strongest first.
func parseScanList(out string) []AccessPoint {
	best := make(map[string]AccessPoint)
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) < 4 {
			continue
		}
		ssid := strings.TrimSpace(fields[0])
		if ssid == "" {
			continue
		}
		signal, _ := strconv.Atoi(strings.TrimSpace(fields[1]))
		ap := AccessPoint{
			SSID:     ssid,
			Signal:   signal,
			Security: normalizeSecurity(fields[2]),
			Band:     freqToBand(fields[3]),
		}
		if prev, ok := best[ssid]; !ok || ap.Signal > prev.Signal {
			best[ssid] = ap
		}
	}

	aps := make([]AccessPoint, 0, len(best))
	for _, ap := range best {
		aps = append(aps, ap)
	}
	sort.Slice(aps, func(i, j int) bool {
		if aps[i].Signal != aps[j].Signal {
			return aps[i].Signal > aps[j].Signal
		}
		return aps[i].SSID < aps[j].SSID
	})
	return aps
}

// parseInUseAP finds the row marked with `*` in
// `nmcli -t -f IN-USE,SSID,SIGNAL device wifi list`.
func parseInUseAP(out string) (AccessPoint, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) < 3 || strings.TrimSpace(fields[0]) != "*" {
			continue
		}
		signal, _ := strconv.Atoi(strings.TrimSpace(fields[2]))
		return AccessPoint{SSID: fields[1], Signal: signal}, true
	}
	return AccessPoint{}, false
}

// parseIP4Address extracts the first IPv4 address from
// `nmcli -t -f IP4.ADDRESS device show`, dropping the prefix length.
func parseIP4Address(out string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "IP4.ADDRESS") {
			continue
		}
		addr := fields[1]
		if i := strings.IndexByte(addr, '/'); i >= 0 {
			addr = addr[:i]
		}
		if addr != "" {
			return addr
		}
	}
	return ""
}

func normalizeSecurity(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "--":
		return "Open"
	case strings.Contains(s, "WPA3"):
		return "WPA3"
	case strings.Contains(s, "WPA2"):
		return "WPA2"
	case strings.Contains(s, "WPA"):
		return "WPA"
	default:
		return s
	}
}

// freqToBand maps a FREQ field like "2412 MHz" to a band label.
func freqToBand(s string) string {
	f := strings.Fields(strings.TrimSpace(s))
	if len(f) == 0 {
		return ""
	}
	mhz, err := strconv.Atoi(f[0])
	if err != nil {
		return ""
	}
	switch {
	case mhz >= 2400 && mhz <= 2500:
		return "2.4GHz"
	case mhz >= 4900 && mhz <= 5900:
		return "5GHz"
	case mhz >= 5925 && mhz <= 7125:
		return "6GHz"
	default:
		return ""
	}
}

// classifyConnectError maps nmcli stderr onto the package error taxonomy so
// raw subprocess output never reaches the caller.
func classifyConnectError(stderr string, err error) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "secrets were required"),
		strings.Contains(s, "invalid password"),
		strings.Contains(s, "802-11-wireless-security.psk"):
		return ErrBadCredentials
	case strings.Contains(s, "no network with ssid"),
		strings.Contains(s, "not find network"):
		return ErrSSIDNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("connection activation failed: %w", err)
	}
}
