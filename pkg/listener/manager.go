package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/httpserver-provider/pkg/dispatch"
	"github.com/morezero/httpserver-provider/pkg/events"
	"github.com/morezero/httpserver-provider/pkg/metrics"
)

const logPrefix = "listener:manager"

const (
	defaultShutdownGrace     = 10 * time.Second
	defaultReadHeaderTimeout = 30 * time.Second
)

// ErrBindFailed wraps any error from binding a listener's address.
var ErrBindFailed = errors.New("listener: bind failed")

// Listener is one bound socket and the HTTP server serving it for a module.
type Listener struct {
	module    string
	addr      string
	startedAt time.Time
	server    *http.Server
	done      chan struct{}
}

// Module returns the owning module id.
func (l *Listener) Module() string { return l.module }

// Addr returns the bound address (with the real port when PORT was 0).
func (l *Listener) Addr() string { return l.addr }

// StartedAt returns when the listener was bound.
func (l *Listener) StartedAt() time.Time { return l.startedAt }

// Done is closed once the serve loop has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

// shutdown stops accepting connections and waits up to grace for in-flight
// requests, then force-closes whatever remains. It returns after the serve loop exits.
func (l *Listener) shutdown(ctx context.Context, grace time.Duration) error {
	sctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	err := l.server.Shutdown(sctx)
	if err != nil {
		l.server.Close()
	}
	<-l.done
	return err
}

// ListenerInfo is a read-only view of a running listener.
type ListenerInfo struct {
	Module    string    `json:"module"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"startedAt"`
}

// ManagerOpts configures a Manager. Zero values use defaults.
type ManagerOpts struct {
	// Handle is shared by every listener; nil creates one with a NoOpDispatcher.
	Handle    *dispatch.Handle
	Metrics   *metrics.Metrics
	Publisher events.EventPublisher
	// ShutdownGrace bounds how long Stop waits for in-flight requests.
	ShutdownGrace     time.Duration
	ReadHeaderTimeout time.Duration
	Handler           HandlerOptions
}

// Manager starts and stops listeners and owns their Registry.
type Manager struct {
	registry  *Registry
	handle    *dispatch.Handle
	metrics   *metrics.Metrics
	publisher events.EventPublisher
	grace     time.Duration
	rhTimeout time.Duration
	handler   HandlerOptions
	locks     keyedMutex
}

// NewManager creates a Manager with an empty Registry.
func NewManager(opts ManagerOpts) *Manager {
	m := &Manager{
		registry:  NewRegistry(),
		handle:    opts.Handle,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		grace:     opts.ShutdownGrace,
		rhTimeout: opts.ReadHeaderTimeout,
		handler:   opts.Handler,
	}
	if m.handle == nil {
		m.handle = dispatch.NewHandle(nil)
	}
	if m.publisher == nil {
		m.publisher = &events.NoOpPublisher{}
	}
	if m.grace <= 0 {
		m.grace = defaultShutdownGrace
	}
	if m.rhTimeout <= 0 {
		m.rhTimeout = defaultReadHeaderTimeout
	}
	if m.handler.Metrics == nil {
		m.handler.Metrics = opts.Metrics
	}
	return m
}

// Registry exposes the listener registry (read-mostly; mutate through Start/Stop).
func (m *Manager) Registry() *Registry { return m.registry }

// Handle returns the dispatch handle shared by all listeners.
func (m *Manager) Handle() *dispatch.Handle { return m.handle }

// Start binds cfg's address and serves it for cfg.Module. A listener already
// running for the module is stopped first, so its address is free for the new bind.
func (m *Manager) Start(ctx context.Context, cfg BindConfig) error {
	unlock := m.locks.lock(cfg.Module)
	defer unlock()

	slog.Info(fmt.Sprintf("%s - Received HTTP server configuration for %s (%s)", logPrefix, cfg.Module, cfg.Addr()))

	if existing, ok := m.registry.Get(cfg.Module); ok {
		slog.Warn(fmt.Sprintf("%s - %s already has a listener on %s; replacing it", logPrefix, cfg.Module, existing.addr))
		m.stopListener(ctx, existing)
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to bind %s for %s: %v", logPrefix, cfg.Addr(), cfg.Module, err))
		m.metrics.Lifecycle("start", "error")
		m.publish(ctx, events.NewListenerEvent(events.KindFailed, cfg.Module, cfg.Addr(), err))
		return fmt.Errorf("%s - %w: %s for %s: %w", logPrefix, ErrBindFailed, cfg.Addr(), cfg.Module, err)
	}

	l := &Listener{
		module:    cfg.Module,
		addr:      ln.Addr().String(),
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	l.server = &http.Server{
		Handler:           NewHandler(cfg.Module, m.handle, m.handler),
		ReadHeaderTimeout: m.rhTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	m.registry.Put(cfg.Module, l)
	m.metrics.ListenerStarted()
	m.metrics.Lifecycle("start", "ok")

	go m.serve(l, ln)

	slog.Info(fmt.Sprintf("%s - HTTP listener for %s serving on %s", logPrefix, cfg.Module, l.addr))
	m.publish(ctx, events.NewListenerEvent(events.KindStarted, cfg.Module, l.addr, nil))
	return nil
}

func (m *Manager) serve(l *Listener, ln net.Listener) {
	defer close(l.done)

	err := l.server.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}

	slog.Error(fmt.Sprintf("%s - listener for %s on %s exited: %v", logPrefix, l.module, l.addr, err))
	if m.registry.RemoveIf(l.module, l) {
		m.metrics.ListenerStopped()
		m.publish(context.Background(), events.NewListenerEvent(events.KindFailed, l.module, l.addr, err))
	}
}

// Stop gracefully shuts down module's listener and evicts it. Stopping a
// module without a listener logs a warning and returns nil.
func (m *Manager) Stop(ctx context.Context, module string) error {
	unlock := m.locks.lock(module)
	defer unlock()

	l, ok := m.registry.Get(module)
	if !ok {
		slog.Warn(fmt.Sprintf("%s - Received request to stop server for non-configured actor %s. Ignoring.", logPrefix, module))
		m.metrics.Lifecycle("stop", "noop")
		return nil
	}

	m.stopListener(ctx, l)
	return nil
}

// stopListener must be called with the module lock held.
func (m *Manager) stopListener(ctx context.Context, l *Listener) {
	slog.Info(fmt.Sprintf("%s - Stopping HTTP listener for %s on %s", logPrefix, l.module, l.addr))

	result := "ok"
	if err := l.shutdown(ctx, m.grace); err != nil {
		result = "forced"
		slog.Warn(fmt.Sprintf("%s - graceful shutdown of %s did not complete, connections closed: %v", logPrefix, l.module, err))
	}

	if m.registry.RemoveIf(l.module, l) {
		m.metrics.ListenerStopped()
	}
	m.metrics.Lifecycle("stop", result)
	m.publish(ctx, events.NewListenerEvent(events.KindStopped, l.module, l.addr, nil))
}

// StopAll stops every registered listener concurrently.
func (m *Manager) StopAll(ctx context.Context) error {
	listeners := m.registry.Snapshot()
	if len(listeners) == 0 {
		return nil
	}
	slog.Info(fmt.Sprintf("%s - Stopping %d listeners", logPrefix, len(listeners)))

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		module := l.module
		g.Go(func() error {
			return m.Stop(gctx, module)
		})
	}
	return g.Wait()
}

// Listeners returns the running listeners sorted by module id.
func (m *Manager) Listeners() []ListenerInfo {
	snap := m.registry.Snapshot()
	out := make([]ListenerInfo, 0, len(snap))
	for _, l := range snap {
		out = append(out, ListenerInfo{Module: l.module, Addr: l.addr, StartedAt: l.startedAt})
	}
	return out
}

func (m *Manager) publish(ctx context.Context, event *events.ListenerEvent) {
	if err := m.publisher.PublishListenerEvent(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s: %v", logPrefix, event.Kind, event.Module, err))
	}
}

// keyedMutex serializes work per key without holding a global lock while the work runs.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	rm, ok := k.locks[key]
	if !ok {
		rm = &refMutex{}
		k.locks[key] = rm
	}
	rm.refs++
	k.mu.Unlock()

	rm.Lock()
	return func() {
		rm.Unlock()
		k.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
