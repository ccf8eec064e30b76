package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentAttempts(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := &AttemptRecord{
			SSID:       fmt.Sprintf("Net%d", i),
			Success:    i%2 == 0,
			Attempts:   3,
			Message:    "done",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 40*time.Second),
		}
		if err := s.AppendAttempt(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentAttempts(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].SSID != "Net4" {
		t.Errorf("first = %q, want Net4", got[0].SSID)
	}
	if got[2].SSID != "Net2" {
		t.Errorf("last = %q, want Net2", got[2].SSID)
	}
}

func TestRecentAttemptsEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.RecentAttempts(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("records = %d, want 0", len(got))
	}
}

func TestAppendAndRecentTransitions(t *testing.T) {
	s := newTestStore(t)

	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	transitions := []*TransitionRecord{
		{From: "unknown", To: "hotspot", Reason: "boot fallback", At: at},
		{From: "hotspot", To: "client_connected", Reason: "connected to HomeWiFi", At: at.Add(time.Minute)},
	}
	for _, rec := range transitions {
		if err := s.AppendTransition(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentTransitions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0].To != "client_connected" {
		t.Errorf("newest to = %q, want client_connected", got[0].To)
	}
	if got[1].To != "hotspot" {
		t.Errorf("oldest to = %q, want hotspot", got[1].To)
	}
}

func TestSubSecondTimestampsStayChronological(t *testing.T) {
	s := newTestStore(t)

	// .5s serializes shorter than .55s; the key layout must keep the
	// fraction fixed-width so the later record still sorts last.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	offsets := []time.Duration{500 * time.Millisecond, 550 * time.Millisecond}
	for i, off := range offsets {
		rec := &AttemptRecord{
			SSID:       fmt.Sprintf("Net%d", i),
			FinishedAt: base.Add(off),
		}
		if err := s.AppendAttempt(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentAttempts(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0].SSID != "Net1" || got[1].SSID != "Net0" {
		t.Errorf("order = %q, %q; want Net1 then Net0", got[0].SSID, got[1].SSID)
	}
}

func TestSameInstantRecordsDoNotCollide(t *testing.T) {
	s := newTestStore(t)

	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &TransitionRecord{From: "a", To: fmt.Sprintf("b%d", i), At: at}
		if err := s.AppendTransition(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentTransitions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
}

func TestPruneKeepsBucketBounded(t *testing.T) {
	s := newTestStore(t)

	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxRecords+20; i++ {
		rec := &AttemptRecord{
			SSID:       fmt.Sprintf("Net%d", i),
			FinishedAt: at.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendAttempt(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentAttempts(maxRecords + 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > maxRecords {
		t.Errorf("records = %d, want <= %d", len(got), maxRecords)
	}
	// The newest record must survive pruning.
	if got[0].SSID != fmt.Sprintf("Net%d", maxRecords+19) {
		t.Errorf("newest = %q, want Net%d", got[0].SSID, maxRecords+19)
	}
}
