package main

import (
	"log/slog"
	"time"

	"wifi-provisiond/internal/hooks"
	"wifi-provisiond/internal/provision"
)

// initHooks builds and starts the hook engine. With the no_hooks build tag
// the engine is a no-op stub and this wires nothing.
func initHooks(mgr *provision.Manager, cfg *Config, logger *slog.Logger) *hooks.Engine {
	execTimeout := 10 * time.Second
	if cfg.Hooks.ExecTimeout != "" {
		execTimeout = mustDuration(cfg.Hooks.ExecTimeout)
	}
	engine := hooks.NewEngine(mgr, hooks.Config{
		Dir:           cfg.Hooks.Dir,
		ExecAllowlist: cfg.Hooks.ExecAllowlist,
		ExecTimeout:   execTimeout,
	}, logger)
	if err := engine.Start(); err != nil {
		logger.Error("hook engine", "err", err)
	}
	return engine
}
