package dispatch

import (
	"context"
	"sync"

	"github.com/mcp-tool-shop/nexus-router/fault"
)

// ResponseFunc computes a fake response from the call arguments.
type ResponseFunc func(args map[string]any) (map[string]any, error)

type callKey struct {
	tool   string
	method string
}

// RecordedCall is one invocation captured by a FakeAdapter.
type RecordedCall struct {
	Tool   string
	Method string
	Args   map[string]any
}

// FakeAdapter is a test double with scriptable responses per (tool, method)
// and a log of every invocation.
type FakeAdapter struct {
	id string

	mu        sync.Mutex
	responses map[callKey]ResponseFunc
	defaultFn ResponseFunc
	calls     []RecordedCall
	caps      CapabilitySet
}

// NewFakeAdapter creates a fake adapter. An empty id defaults to "fake".
func NewFakeAdapter(id string) *FakeAdapter {
	if id == "" {
		id = "fake"
	}
	return &FakeAdapter{
		id:        id,
		responses: make(map[callKey]ResponseFunc),
		caps:      NewCapabilitySet(CapabilityDryRun, CapabilityApply),
	}
}

func (a *FakeAdapter) AdapterID() string   { return a.id }
func (a *FakeAdapter) AdapterKind() string { return "fake" }

func (a *FakeAdapter) Capabilities() CapabilitySet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps.Clone()
}

// SetCapabilities overrides the declared set, for tests that need an
// adapter without apply (or with nonstandard declarations).
func (a *FakeAdapter) SetCapabilities(caps ...Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.caps = NewCapabilitySet(caps...)
}

// SetResponse scripts a fixed response for (tool, method).
func (a *FakeAdapter) SetResponse(tool, method string, response map[string]any) {
	a.SetResponseFunc(tool, method, func(map[string]any) (map[string]any, error) {
		return response, nil
	})
}

// SetResponseFunc scripts a computed response for (tool, method).
func (a *FakeAdapter) SetResponseFunc(tool, method string, fn ResponseFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[callKey{tool, method}] = fn
}

// SetDefaultResponse scripts the response for unregistered calls.
func (a *FakeAdapter) SetDefaultResponse(fn ResponseFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaultFn = fn
}

// SetOperationalError scripts (tool, method) to fail with an operational
// error of the given code.
func (a *FakeAdapter) SetOperationalError(tool, method, code, message string) {
	a.SetResponseFunc(tool, method, func(map[string]any) (map[string]any, error) {
		return nil, fault.NewOperational(code, "%s", message)
	})
}

// SetBugError scripts (tool, method) to fail with a bug error.
func (a *FakeAdapter) SetBugError(tool, method, code, message string) {
	a.SetResponseFunc(tool, method, func(map[string]any) (map[string]any, error) {
		return nil, fault.NewBug(code, "%s", message)
	})
}

// Calls returns a copy of the invocation log.
func (a *FakeAdapter) Calls() []RecordedCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RecordedCall, len(a.calls))
	copy(out, a.calls)
	return out
}

// Reset clears scripted responses and the call log.
func (a *FakeAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = make(map[callKey]ResponseFunc)
	a.defaultFn = nil
	a.calls = nil
}

// Call executes the scripted response, logging the invocation first.
func (a *FakeAdapter) Call(_ context.Context, tool, method string, args map[string]any) (map[string]any, error) {
	a.mu.Lock()
	a.calls = append(a.calls, RecordedCall{Tool: tool, Method: method, Args: args})
	fn, ok := a.responses[callKey{tool, method}]
	if !ok {
		fn = a.defaultFn
	}
	a.mu.Unlock()

	if fn != nil {
		return fn(args)
	}
	return map[string]any{
		"fake":   true,
		"tool":   tool,
		"method": method,
	}, nil
}
