package hostlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/httpserver-provider/pkg/commsutil"
	"github.com/morezero/httpserver-provider/pkg/listener"
	"github.com/morezero/httpserver-provider/pkg/provider"
)

const logPrefix = "hostlink:link"

// DefaultCallTimeout bounds a single control call when no timeout is configured.
const DefaultCallTimeout = 30 * time.Second

// Caller handles one host operation. *provider.Provider implements it.
type Caller interface {
	HandleCall(ctx context.Context, origin, op string, payload []byte) ([]byte, error)
}

// LinkOpts holds options for NewLink.
type LinkOpts struct {
	// CallTimeout bounds each call; zero uses DefaultCallTimeout.
	CallTimeout time.Duration
}

// Link routes control envelopes to a Caller.
type Link struct {
	caller   Caller
	timeout  time.Duration
	inflight sync.WaitGroup
}

// NewLink creates a Link. opts may be nil.
func NewLink(caller Caller, opts *LinkOpts) *Link {
	timeout := DefaultCallTimeout
	if opts != nil && opts.CallTimeout > 0 {
		timeout = opts.CallTimeout
	}
	return &Link{caller: caller, timeout: timeout}
}

// Handle runs one control request and builds the reply.
func (l *Link) Handle(ctx context.Context, req *ControlRequest) *ControlResponse {
	slog.Debug(fmt.Sprintf("%s - op=%s origin=%s id=%s", logPrefix, req.Op, req.Origin, req.ID))

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	result, err := l.caller.HandleCall(callCtx, req.Origin, req.Op, req.Payload)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	return &ControlResponse{ID: req.ID, Ok: true, Result: result}
}

// HandleMsg decodes msg, handles it, and responds when msg has a reply subject.
func (l *Link) HandleMsg(ctx context.Context, msg *comms.Msg) {
	var req ControlRequest
	var resp *ControlResponse
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode control request: %v", logPrefix, err))
		resp = errorResponse("", CodeInvalidRequest, "Failed to decode request", false)
	} else {
		resp = l.Handle(ctx, &req)
	}

	if msg.Reply == "" {
		return
	}
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", logPrefix, req.ID, err))
	}
}

// Subscribe serves the control subject on nc until ctx is cancelled or the
// subscription is drained. Each call runs in its own goroutine so a slow stop
// for one module does not hold up calls for others; the listener manager
// orders calls for the same module.
func (l *Link) Subscribe(ctx context.Context, nc *comms.Conn, subject string) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.HandleMsg(ctx, msg)
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return sub, nil
}

// Wait blocks until every call started by Subscribe has replied, or ctx is done.
func (l *Link) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - control calls still running: %w", logPrefix, ctx.Err())
	}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *ControlResponse {
	return &ControlResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func errorToResponse(id string, err error) *ControlResponse {
	switch {
	case errors.Is(err, provider.ErrUntrustedOrigin):
		return errorResponse(id, CodeUnauthorizedOrigin, err.Error(), false)
	case errors.Is(err, provider.ErrUnknownOperation):
		return errorResponse(id, CodeUnknownOperation, err.Error(), false)
	case errors.Is(err, listener.ErrInvalidConfiguration):
		return errorResponse(id, CodeInvalidArgument, err.Error(), false)
	case errors.Is(err, listener.ErrBindFailed):
		return errorResponse(id, CodeBindFailed, err.Error(), true)
	}
	return errorResponse(id, CodeInternalError, err.Error(), true)
}
