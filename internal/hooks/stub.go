//go:build no_hooks

package hooks

import (
	"log/slog"
	"time"

	"wifi-provisiond/internal/provision"
)

// Config holds hook engine configuration (stub).
type Config struct {
	Dir           string
	ExecAllowlist []string
	ExecTimeout   time.Duration
}

// Engine is a no-op stub when hooks are disabled.
type Engine struct{}

// NewEngine returns a no-op engine when hooks are disabled.
func NewEngine(_ *provision.Manager, _ Config, _ *slog.Logger) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() error { return nil }

// Stop is a no-op.
func (e *Engine) Stop() {}

// Loaded returns 0.
func (e *Engine) Loaded() int { return 0 }
