// Package script runs optional Lua hooks on hover selection events.
//
// A hook script may define any of these global functions:
//
//	on_selection_complete(total)   after every hover run
//	on_indexes_rebuilt(indexed)    after every index rebuild
//
// Scripts can call log(msg [, level]) to write to the tool's log. Hook
// errors are logged and never reach the engine.
//
// The Lua state only has the base, table, string and math libraries, and
// the functions that load code from files or strings are removed.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hoverselect/internal/event"
	"github.com/dshills/hoverselect/internal/logging"
)

// Hook function names.
const (
	HookSelectionComplete = "on_selection_complete"
	HookIndexesRebuilt    = "on_indexes_rebuilt"
)

// DefaultCallTimeout bounds a single hook call.
const DefaultCallTimeout = time.Second

// ErrClosed is returned after Close.
var ErrClosed = errors.New("script closed")

// HookError reports a hook that failed.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("lua hook %s: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Subscriber is implemented by the engine.
type Subscriber interface {
	SubscribeTo(name string, h event.Handler) *event.Subscription
}

// Option configures Hooks.
type Option func(*Hooks)

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(h *Hooks) { h.timeout = d }
}

// Hooks is a loaded hook script. It is safe for concurrent use; calls are
// serialized on one Lua state.
type Hooks struct {
	mu      sync.Mutex
	L       *lua.LState
	name    string
	logger  *logging.Logger
	timeout time.Duration
	closed  bool
}

// Load runs the script at path and returns its hooks.
func Load(path string, logger *logging.Logger, opts ...Option) (*Hooks, error) {
	h := newHooks(path, logger, opts)
	if err := h.protect(func() error { return h.L.DoFile(path) }); err != nil {
		h.L.Close()
		return nil, fmt.Errorf("load hook script %s: %w", path, err)
	}
	return h, nil
}

// LoadString runs code as a script named name.
func LoadString(name, code string, logger *logging.Logger, opts ...Option) (*Hooks, error) {
	h := newHooks(name, logger, opts)
	if err := h.protect(func() error { return h.L.DoString(code) }); err != nil {
		h.L.Close()
		return nil, fmt.Errorf("load hook script %s: %w", name, err)
	}
	return h, nil
}

func newHooks(name string, logger *logging.Logger, opts []Option) *Hooks {
	h := &Hooks{
		name:    name,
		logger:  logging.OrNull(logger).WithComponent("script").WithField("script", name),
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(fn, lua.LNil)
	}
	L.SetGlobal("log", L.NewFunction(h.luaLog))
	h.L = L
	return h
}

// luaLog implements log(msg [, level]).
func (h *Hooks) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	level := logging.ParseLevel(L.OptString(2, "info"))
	h.logger.Log(level, msg)
	return 0
}

// Has reports whether the script defines the named global function.
func (h *Hooks) Has(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	return h.L.GetGlobal(name).Type() == lua.LTFunction
}

// Call invokes a global function if it exists. A missing function is not an
// error.
func (h *Hooks) Call(name string, args ...lua.LValue) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	fn := h.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.L.SetContext(ctx)
	defer h.L.RemoveContext()

	err := h.protect(func() error {
		return h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
	if err != nil {
		return &HookError{Hook: name, Err: err}
	}
	return nil
}

// SelectionComplete runs on_selection_complete(total).
func (h *Hooks) SelectionComplete(total int) {
	h.report(h.Call(HookSelectionComplete, lua.LNumber(total)))
}

// IndexesRebuilt runs on_indexes_rebuilt(indexed).
func (h *Hooks) IndexesRebuilt(indexed int) {
	h.report(h.Call(HookIndexesRebuilt, lua.LNumber(indexed)))
}

// Attach subscribes the hooks to the events of s. The returned
// subscriptions should be released when the script is unloaded.
func (h *Hooks) Attach(s Subscriber) []*event.Subscription {
	return []*event.Subscription{
		s.SubscribeTo(event.NameSelectionCompleted, func(ev event.Event) {
			if done, ok := ev.(event.SelectionCompleted); ok {
				h.SelectionComplete(done.Total)
			}
		}),
		s.SubscribeTo(event.NameIndexesRebuilt, func(ev event.Event) {
			if rebuilt, ok := ev.(event.IndexesRebuilt); ok {
				h.IndexesRebuilt(rebuilt.Indexed)
			}
		}),
	}
}

// Close releases the Lua state. It is idempotent.
func (h *Hooks) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.L.Close()
}

func (h *Hooks) report(err error) {
	if err != nil && !errors.Is(err, ErrClosed) {
		h.logger.Warn("%v", err)
	}
}

func (h *Hooks) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
