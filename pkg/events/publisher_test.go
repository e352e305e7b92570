package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

const publisherTestPrefix = "events:publisher_test"

func TestNewListenerEvent(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	tests := []struct {
		name      string
		kind      string
		cause     error
		wantError string
	}{
		{name: "started", kind: KindStarted},
		{name: "stopped", kind: KindStopped},
		{name: "failed with cause", kind: KindFailed, cause: errors.New("address already in use"), wantError: "address already in use"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewListenerEvent(tt.kind, "m1", "127.0.0.1:9100", tt.cause)
			if e.Kind != tt.kind || e.Module != "m1" || e.Addr != "127.0.0.1:9100" {
				t.Errorf("%s - unexpected event %+v", publisherTestPrefix, e)
			}
			if e.Error != tt.wantError {
				t.Errorf("%s - error = %q, want %q", publisherTestPrefix, e.Error, tt.wantError)
			}
			if e.Timestamp != "2025-03-04T04:06:07Z" {
				t.Errorf("%s - timestamp = %q, want UTC RFC3339", publisherTestPrefix, e.Timestamp)
			}
		})
	}
}

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	if err := pub.PublishListenerEvent(context.Background(), NewListenerEvent(KindStarted, "m1", "", nil)); err != nil {
		t.Errorf("%s - expected no error, got %v", publisherTestPrefix, err)
	}
}

func TestPublisherFunc_PropagatesError(t *testing.T) {
	want := errors.New("comms down")
	var pub EventPublisher = PublisherFunc(func(context.Context, *ListenerEvent) error { return want })

	if err := pub.PublishListenerEvent(context.Background(), NewListenerEvent(KindFailed, "m1", "", nil)); !errors.Is(err, want) {
		t.Errorf("%s - expected function error, got %v", publisherTestPrefix, err)
	}
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	event := NewListenerEvent(KindStarted, "m1", "127.0.0.1:9100", nil)
	rec.PublishListenerEvent(ctx, event)
	rec.PublishListenerEvent(ctx, NewListenerEvent(KindStarted, "m2", "127.0.0.1:9101", nil))
	rec.PublishListenerEvent(ctx, NewListenerEvent(KindStopped, "m1", "127.0.0.1:9100", nil))

	// Later mutation of the caller's event must not leak into the record.
	event.Addr = "changed"

	got := rec.Events()
	if len(got) != 3 {
		t.Fatalf("%s - recorded %d events, want 3", publisherTestPrefix, len(got))
	}
	if got[0].Addr != "127.0.0.1:9100" {
		t.Errorf("%s - recorded addr = %q", publisherTestPrefix, got[0].Addr)
	}

	kinds := rec.Kinds("m1")
	if len(kinds) != 2 || kinds[0] != KindStarted || kinds[1] != KindStopped {
		t.Errorf("%s - m1 kinds = %v, want [started stopped]", publisherTestPrefix, kinds)
	}
	if kinds := rec.Kinds("absent"); len(kinds) != 0 {
		t.Errorf("%s - absent kinds = %v, want none", publisherTestPrefix, kinds)
	}
}
