package events

import (
	"context"
	"sync"
)

// EventPublisher is the interface for publishing listener lifecycle events.
type EventPublisher interface {
	PublishListenerEvent(ctx context.Context, event *ListenerEvent) error
}

// NoOpPublisher drops every event. The manager uses it when no COMMS connection is configured.
type NoOpPublisher struct{}

// PublishListenerEvent is a no-op.
func (p *NoOpPublisher) PublishListenerEvent(_ context.Context, _ *ListenerEvent) error {
	return nil
}

// PublisherFunc adapts a plain function to EventPublisher.
type PublisherFunc func(ctx context.Context, event *ListenerEvent) error

// PublishListenerEvent calls f.
func (f PublisherFunc) PublishListenerEvent(ctx context.Context, event *ListenerEvent) error {
	return f(ctx, event)
}

// Recorder keeps every published event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []ListenerEvent
}

// PublishListenerEvent appends a copy of event.
func (r *Recorder) PublishListenerEvent(_ context.Context, event *ListenerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Events returns the recorded events in publish order.
func (r *Recorder) Events() []ListenerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ListenerEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events for module, in publish order.
func (r *Recorder) Kinds(module string) []string {
	var kinds []string
	for _, e := range r.Events() {
		if e.Module == module {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
