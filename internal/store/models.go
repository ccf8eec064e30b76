package store

import "time"

// AttemptRecord is one finished connect request (all retries included).
type AttemptRecord struct {
	SSID       string    `json:"ssid"`
	Success    bool      `json:"success"`
	Attempts   int       `json:"attempts"`
	IP         string    `json:"ip,omitempty"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// TransitionRecord is one device-mode transition.
type TransitionRecord struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}
