package provision

import "errors"

var (
	// ErrAttemptInProgress is returned when a connect request arrives while
	// another interface-mutating operation holds the single-flight lock.
	ErrAttemptInProgress = errors.New("a connection attempt is already in progress")

	// ErrAllAttemptsFailed is returned after the retry budget is exhausted
	// and the previous configuration has been rolled back.
	ErrAllAttemptsFailed = errors.New("all connection attempts failed")

	// ErrConnectionTimeout is the per-attempt failure when the link never
	// reaches the connected state on the target SSID within the deadline.
	ErrConnectionTimeout = errors.New("connection timed out")

	// ErrHotspotActivation means the hotspot could not be brought up or did
	// not verify as running. There is no further fallback.
	ErrHotspotActivation = errors.New("hotspot activation failed")

	// ErrCannotForgetActive rejects deleting the profile of the live
	// connection, which would cut the only path back to the device.
	ErrCannotForgetActive = errors.New("cannot forget the currently connected network")

	// ErrInterfaceNotFound means no usable wireless interface appeared
	// within the boot wait.
	ErrInterfaceNotFound = errors.New("wireless interface not found")

	// ErrMarkerWrite means the mode marker could not be persisted.
	ErrMarkerWrite = errors.New("mode marker write failed")
)
