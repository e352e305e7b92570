package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/httpserver-provider/pkg/commsutil"
)

const natsLogPrefix = "dispatch:nats"

// DefaultTimeout bounds a NATS dispatch when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrModuleUnavailable means no module instance is subscribed to the target subject.
var ErrModuleUnavailable = errors.New("dispatch: module unavailable")

// ModuleError is a failure reported by the module itself.
type ModuleError struct {
	Module    string
	Operation string
	Message   string
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s failed %s: %s", e.Module, e.Operation, e.Message)
}

// NATSDispatcher delivers operations to modules via NATS request/reply on
// per-module actor subjects.
type NATSDispatcher struct {
	nc            *comms.Conn
	subjectPrefix string
	origin        string
}

// NATSDispatcherOpts configures NATSDispatcher. Zero values use defaults.
type NATSDispatcherOpts struct {
	// SubjectPrefix overrides commsutil.DefaultActorPrefix.
	SubjectPrefix string
	// Origin is stamped into the Origin header of each request (capability id of the caller).
	Origin string
}

// NewNATSDispatcher creates a NATSDispatcher on an established connection.
func NewNATSDispatcher(nc *comms.Conn, opts *NATSDispatcherOpts) *NATSDispatcher {
	d := &NATSDispatcher{nc: nc, subjectPrefix: commsutil.DefaultActorPrefix}
	if opts != nil {
		if opts.SubjectPrefix != "" {
			d.subjectPrefix = opts.SubjectPrefix
		}
		d.origin = opts.Origin
	}
	return d
}

// Dispatch sends payload to the module's actor subject and returns the reply data.
func (d *NATSDispatcher) Dispatch(ctx context.Context, target, operation string, payload []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	subject := commsutil.BuildActorSubject(d.subjectPrefix, target, operation)
	msg := comms.NewMsg(subject)
	msg.Data = payload
	if d.origin != "" {
		msg.Header.Set(commsutil.HeaderOrigin, d.origin)
	}
	msg.Header.Set(commsutil.HeaderOperation, operation)

	slog.Debug(fmt.Sprintf("%s - dispatch %s to %s (%d bytes)", natsLogPrefix, operation, subject, len(payload)))

	reply, err := d.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, comms.ErrNoResponders) {
			return nil, fmt.Errorf("%s - %s: %w", natsLogPrefix, subject, ErrModuleUnavailable)
		}
		return nil, fmt.Errorf("%s - request %s: %w", natsLogPrefix, subject, err)
	}

	if e := reply.Header.Get(commsutil.HeaderError); e != "" {
		return nil, &ModuleError{Module: target, Operation: operation, Message: e}
	}
	return reply.Data, nil
}
