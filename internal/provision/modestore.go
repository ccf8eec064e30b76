package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ModeStore persists the hotspot-mode decision as a marker file. The file's
// existence means "hotspot mode is intentional"; absence means the device
// should run as a client. It is the single source of truth across restarts.
type ModeStore struct {
	path string
	mu   sync.Mutex
}

// NewModeStore creates a mode store backed by the marker at path.
func NewModeStore(path string) *ModeStore {
	return &ModeStore{path: path}
}

// Present reports whether the marker exists.
func (ms *ModeStore) Present() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, err := os.Stat(ms.path)
	return err == nil
}

// Set writes the marker. The content is informational only; a crash mid-write
// must never leave a half-written file, so the write goes to a temporary path
// first and is renamed into place.
func (ms *ModeStore) Set() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	dir := filepath.Dir(ms.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerWrite, err)
	}

	tmp, err := os.CreateTemp(dir, ".hotspot_mode-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerWrite, err)
	}
	_, werr := fmt.Fprintf(tmp, "entered %s\n", time.Now().Format(time.RFC3339))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrMarkerWrite, errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp.Name(), ms.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrMarkerWrite, err)
	}
	return nil
}

// Clear removes the marker. Removing an absent marker is not an error.
func (ms *ModeStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err := os.Remove(ms.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove mode marker: %w", err)
	}
	return nil
}
