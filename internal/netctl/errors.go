package netctl

import "errors"

// Classified gateway failures. Raw subprocess output never crosses the
// package boundary; stderr is mapped onto one of these.
var (
	// ErrBadCredentials means the network rejected the supplied secret.
	ErrBadCredentials = errors.New("network rejected the credentials")

	// ErrSSIDNotFound means no network with the requested SSID is visible.
	ErrSSIDNotFound = errors.New("no network with that SSID found")

	// ErrProfileNotFound means the named saved connection does not exist.
	ErrProfileNotFound = errors.New("saved network not found")

	// ErrNoWifiDevice means no wifi-capable interface exists on the host.
	ErrNoWifiDevice = errors.New("no wifi device found")
)
