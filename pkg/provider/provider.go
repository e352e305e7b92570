// Package provider is the capability provider facade the host runtime talks to.
// It owns the listener manager and the shared dispatch handle, and only lets
// the host itself bind or unbind modules.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/httpserver-provider/pkg/codec"
	"github.com/morezero/httpserver-provider/pkg/dispatch"
	"github.com/morezero/httpserver-provider/pkg/listener"
	"github.com/morezero/httpserver-provider/pkg/metrics"
)

const logPrefix = "provider:provider"

// Identity of this provider.
const (
	CapabilityID = "wascc:http_server"
	ProviderName = "Default HTTP Server (net/http)"
)

// Host operations and the origin allowed to invoke them.
const (
	OpBindActor   = "BindActor"
	OpRemoveActor = "RemoveActor"
	SystemOrigin  = "system"
)

var (
	// ErrUntrustedOrigin is returned when anyone but the host asks to bind or unbind.
	ErrUntrustedOrigin = errors.New("provider: untrusted origin")
	// ErrUnknownOperation matches any *UnknownOperationError.
	ErrUnknownOperation = errors.New("provider: unsupported operation")
)

// UnknownOperationError names an operation this provider does not implement.
type UnknownOperationError struct {
	Op string
}

func (e *UnknownOperationError) Error() string { return "Unknown operation: " + e.Op }

func (e *UnknownOperationError) Is(target error) bool { return target == ErrUnknownOperation }

// Provider implements the wascc:http_server capability.
type Provider struct {
	manager *listener.Manager
	store   BindingStore
	metrics *metrics.Metrics
}

// Params holds parameters for New.
type Params struct {
	// Manager runs the listeners; nil creates one with default options.
	Manager *listener.Manager
	// Store persists bindings; nil keeps them in memory only.
	Store   BindingStore
	Metrics *metrics.Metrics
}

// New creates a Provider with an empty listener registry and a no-op dispatcher.
func New(params Params) *Provider {
	mgr := params.Manager
	if mgr == nil {
		mgr = listener.NewManager(listener.ManagerOpts{Metrics: params.Metrics})
	}
	store := params.Store
	if store == nil {
		store = &NoOpStore{}
	}
	return &Provider{manager: mgr, store: store, metrics: params.Metrics}
}

// CapabilityID returns the capability id served by this provider.
func (p *Provider) CapabilityID() string { return CapabilityID }

// Name returns the human-friendly provider name.
func (p *Provider) Name() string { return ProviderName }

// Manager returns the listener manager.
func (p *Provider) Manager() *listener.Manager { return p.manager }

// ConfigureDispatch installs the dispatcher supplied by the host. Every
// listener, running or not yet started, uses it from its next request on.
func (p *Provider) ConfigureDispatch(d dispatch.Dispatcher) error {
	p.manager.Handle().Set(d)
	slog.Info(fmt.Sprintf("%s - Dispatcher configured (%T)", logPrefix, d))
	return nil
}

// HandleCall handles an invocation from the host runtime. payload is a
// CBOR-encoded codec.CapabilityConfiguration for both lifecycle operations.
func (p *Provider) HandleCall(ctx context.Context, origin, op string, payload []byte) ([]byte, error) {
	slog.Debug(fmt.Sprintf("%s - Handling operation %s from %s", logPrefix, op, origin))

	switch op {
	case OpBindActor, OpRemoveActor:
	default:
		return nil, &UnknownOperationError{Op: op}
	}

	if origin != SystemOrigin {
		slog.Warn(fmt.Sprintf("%s - Rejected %s from untrusted origin %q", logPrefix, op, origin))
		p.metrics.Rejected(op, "untrusted_origin")
		return nil, fmt.Errorf("%w: %s may only be invoked by %q, not %q", ErrUntrustedOrigin, op, SystemOrigin, origin)
	}

	cfg, err := codec.DecodeConfiguration(payload)
	if err != nil {
		p.metrics.Rejected(op, "invalid_payload")
		return nil, fmt.Errorf("%s - %w: %w", logPrefix, listener.ErrInvalidConfiguration, err)
	}

	if op == OpBindActor {
		return []byte{}, p.Bind(ctx, cfg)
	}
	slog.Info(fmt.Sprintf("%s - Removing actor configuration for %s", logPrefix, cfg.Module))
	return []byte{}, p.Unbind(ctx, cfg.Module)
}

// Bind starts a listener for cfg and records the binding. Callers are trusted.
// If cfg replaces a running listener and the new address cannot be bound, the
// module is left without a listener and its persisted binding is dropped too.
func (p *Provider) Bind(ctx context.Context, cfg *codec.CapabilityConfiguration) error {
	bindCfg, err := listener.ParseBindConfig(cfg)
	if err != nil {
		p.metrics.Rejected(OpBindActor, "invalid_configuration")
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	_, replacing := p.manager.Registry().Get(bindCfg.Module)
	if err := p.manager.Start(ctx, bindCfg); err != nil {
		if replacing {
			if derr := p.store.DeleteBinding(ctx, bindCfg.Module); derr != nil {
				slog.Error(fmt.Sprintf("%s - failed to drop stale binding for %s: %v", logPrefix, bindCfg.Module, derr))
			}
		}
		return err
	}
	if err := p.store.SaveBinding(ctx, cfg); err != nil {
		slog.Error(fmt.Sprintf("%s - listener for %s is running but the binding was not persisted: %v", logPrefix, cfg.Module, err))
	}
	return nil
}

// Unbind stops module's listener, if any, and forgets its binding.
func (p *Provider) Unbind(ctx context.Context, module string) error {
	if err := p.manager.Stop(ctx, module); err != nil {
		return err
	}
	if err := p.store.DeleteBinding(ctx, module); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to delete persisted binding for %s: %v", logPrefix, module, err))
	}
	return nil
}

// Restore re-binds every persisted binding. It keeps going past failures and
// returns how many listeners were started along with the joined errors.
func (p *Provider) Restore(ctx context.Context) (int, error) {
	bindings, err := p.store.ListBindings(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - failed to list bindings: %w", logPrefix, err)
	}

	started := 0
	var errs []error
	for i := range bindings {
		if err := p.Bind(ctx, &bindings[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		started++
	}
	if started > 0 {
		slog.Info(fmt.Sprintf("%s - Restored %d of %d persisted bindings", logPrefix, started, len(bindings)))
	}
	return started, errors.Join(errs...)
}

// Shutdown stops every listener. Bindings stay persisted so a restart restores them.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.manager.StopAll(ctx)
}
