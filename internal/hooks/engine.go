//go:build !no_hooks

// Package hooks runs operator-supplied Lua scripts against provisioning
// events. A hook can log, run allowlisted commands, or inspect the current
// status, letting installations react to mode changes without rebuilding
// the daemon.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"wifi-provisiond/internal/provision"
)

// Config holds hook engine configuration.
type Config struct {
	Dir           string        // directory scanned for *.lua files
	ExecAllowlist []string      // absolute command paths system.exec may run
	ExecTimeout   time.Duration // timeout for exec commands
}

// luaEventHandler is a registered Lua callback for an event type.
// An eventType of "*" matches every event.
type luaEventHandler struct {
	eventType string
	fn        *lua.LFunction
}

// hookVM is a running Lua VM for a single hook file.
type hookVM struct {
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
}

// Engine manages hook VMs and dispatches provisioning events to them.
type Engine struct {
	mgr    *provision.Manager
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	vms   map[string]*hookVM // file name -> running VM
	unsub func()
}

// NewEngine creates a hook engine.
func NewEngine(mgr *provision.Manager, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		mgr:    mgr,
		cfg:    cfg,
		logger: logger.With("component", "hooks"),
		vms:    make(map[string]*hookVM),
	}
}

// Start loads every hook file and subscribes to the event bus. A hook that
// fails to load is skipped, it never stops the others.
func (e *Engine) Start() error {
	if e.cfg.Dir == "" {
		return nil
	}

	entries, err := os.ReadDir(e.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Info("hook directory absent, no hooks loaded", "dir", e.cfg.Dir)
			return nil
		}
		return fmt.Errorf("read hook dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".lua") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.startHook(name); err != nil {
			e.logger.Error("load hook", "file", name, "err", err)
		}
	}

	e.unsub = e.mgr.Events().OnAll(e.dispatchEvent)
	e.logger.Info("hook engine started", "hooks", len(e.vms))
	return nil
}

// Stop cancels all VMs and unsubscribes from the event bus.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, vm := range e.vms {
		vm.cancel()
		delete(e.vms, name)
	}

	if e.unsub != nil {
		e.unsub()
	}

	e.logger.Info("hook engine stopped")
}

// Loaded reports the number of running hook VMs.
func (e *Engine) Loaded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vms)
}

func (e *Engine) startHook(name string) error {
	code, err := os.ReadFile(filepath.Join(e.cfg.Dir, name))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	// Sandbox: hooks get wifi/system, nothing that touches the host
	// directly.
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("package", lua.LNil)

	vm := &hookVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}

	registerWifiModule(L, vm, e)
	registerSystemModule(L, e)

	// Top-level code runs once to register handlers.
	if err := L.DoString(string(code)); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute hook %s: %w", name, err)
	}

	e.mu.Lock()
	e.vms[name] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("hook loaded", "file", name)
	return nil
}

// dispatchEvent routes an event to every matching Lua handler.
func (e *Engine) dispatchEvent(event provision.Event) {
	e.mu.Lock()
	vmsCopy := make(map[string]*hookVM, len(e.vms))
	for k, v := range e.vms {
		vmsCopy[k] = v
	}
	e.mu.Unlock()

	for _, vm := range vmsCopy {
		vm.mu.Lock()
		handlers := make([]luaEventHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if h.eventType != "*" && h.eventType != event.Type {
				continue
			}

			fn := h.fn
			select {
			case <-vm.ctx.Done():
			case vm.commands <- func(L *lua.LState) {
				e.callHandler(L, fn, event)
			}:
			default:
				e.logger.Warn("hook command channel full, dropping event")
			}
		}
	}
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, event provision.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	eventTable := L.NewTable()
	eventTable.RawSetString("type", lua.LString(event.Type))

	if data, ok := event.Data.(map[string]interface{}); ok {
		for k, v := range data {
			eventTable.RawSetString(k, goToLua(L, v))
		}
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, eventTable); err != nil {
		e.logger.Error("lua handler error", "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
