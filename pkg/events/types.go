// Package events defines listener lifecycle events and the publishers that emit them.
package events

import "time"

// Listener event kinds.
const (
	KindStarted = "started"
	KindStopped = "stopped"
	KindFailed  = "failed"
)

// ListenerEvent is emitted when a module's listener is started, stopped, or fails to bind.
type ListenerEvent struct {
	Kind      string `json:"kind"`
	Module    string `json:"module"`
	Addr      string `json:"addr,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// now is replaced in tests.
var now = time.Now

// NewListenerEvent builds an event stamped with the current UTC time.
// A non-nil cause is recorded in Error.
func NewListenerEvent(kind, module, addr string, cause error) *ListenerEvent {
	e := &ListenerEvent{
		Kind:      kind,
		Module:    module,
		Addr:      addr,
		Timestamp: now().UTC().Format(time.RFC3339),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}
