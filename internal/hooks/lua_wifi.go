//go:build !no_hooks

package hooks

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// registerWifiModule registers the `wifi` global table in a Lua state.
func registerWifiModule(L *lua.LState, vm *hookVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return wifiOn(L, vm)
	}))

	mod.RawSetString("status", L.NewFunction(func(L *lua.LState) int {
		return wifiStatus(L, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		e.logger.Info("hook log", "msg", msg)
		return 0
	}))

	L.SetGlobal("wifi", mod)
}

const maxHandlersPerHook = 100

// wifi.on(type, callback) registers a handler. "*" subscribes to every
// event type.
func wifiOn(L *lua.LState, vm *hookVM) int {
	eventType := L.CheckString(1)
	fn := L.CheckFunction(2)

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerHook {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerHook)
		return 0
	}
	vm.handlers = append(vm.handlers, luaEventHandler{eventType: eventType, fn: fn})
	vm.mu.Unlock()

	return 0
}

// wifi.status() returns the current status as a table.
func wifiStatus(L *lua.LState, e *Engine) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := e.mgr.Status(ctx)
	if err != nil {
		e.logger.Warn("hook status query", "err", err)
		L.Push(lua.LNil)
		return 1
	}

	t := L.NewTable()
	t.RawSetString("mode", lua.LString(st.Mode))
	t.RawSetString("connected", lua.LBool(st.Connected))
	t.RawSetString("ssid", lua.LString(st.SSID))
	t.RawSetString("ip", lua.LString(st.IP))
	t.RawSetString("signal", lua.LNumber(st.Signal))
	L.Push(t)
	return 1
}
