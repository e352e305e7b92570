// Package dispatch carries serialized operations from the provider to the
// actor modules it serves.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// OpHandleRequest is the module operation invoked for every inbound HTTP request.
const OpHandleRequest = "HandleRequest"

// ErrNotConfigured is returned by the NoOpDispatcher. It means the host has
// not yet supplied a real dispatcher.
var ErrNotConfigured = errors.New("dispatch: no dispatcher configured")

// Dispatcher forwards a serialized operation to a module and waits for its reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, target, operation string, payload []byte) ([]byte, error)
}

// NoOpDispatcher rejects every call. It is the default until the host configures dispatch.
type NoOpDispatcher struct{}

// Dispatch always fails with ErrNotConfigured.
func (NoOpDispatcher) Dispatch(_ context.Context, _, _ string, _ []byte) ([]byte, error) {
	return nil, ErrNotConfigured
}

// Func adapts a plain function to the Dispatcher interface (in-process hosts, tests).
type Func func(ctx context.Context, target, operation string, payload []byte) ([]byte, error)

// Dispatch calls f.
func (f Func) Dispatch(ctx context.Context, target, operation string, payload []byte) ([]byte, error) {
	return f(ctx, target, operation, payload)
}

// Handle is the shared reference to the current Dispatcher. Writers take the
// lock exclusively; readers share it only long enough to load the value, so a
// slow module never blocks Set.
type Handle struct {
	mu sync.RWMutex
	d  Dispatcher
}

// NewHandle returns a Handle holding d, or a NoOpDispatcher when d is nil.
func NewHandle(d Dispatcher) *Handle {
	if d == nil {
		d = NoOpDispatcher{}
	}
	return &Handle{d: d}
}

// Set replaces the current dispatcher. A nil d resets to NoOpDispatcher.
func (h *Handle) Set(d Dispatcher) {
	if d == nil {
		d = NoOpDispatcher{}
	}
	h.mu.Lock()
	h.d = d
	h.mu.Unlock()
}

// Current returns the dispatcher in effect right now.
func (h *Handle) Current() Dispatcher {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.d
}

// Dispatch forwards to the current dispatcher.
func (h *Handle) Dispatch(ctx context.Context, target, operation string, payload []byte) ([]byte, error) {
	return h.Current().Dispatch(ctx, target, operation, payload)
}
