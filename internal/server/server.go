// Package server orchestrates all components: NATS client, optional DB, listener manager, host link, admin HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/httpserver-provider/internal/config"
	"github.com/morezero/httpserver-provider/pkg/bootstrap"
	"github.com/morezero/httpserver-provider/pkg/commsutil"
	"github.com/morezero/httpserver-provider/pkg/db"
	"github.com/morezero/httpserver-provider/pkg/dispatch"
	"github.com/morezero/httpserver-provider/pkg/events"
	"github.com/morezero/httpserver-provider/pkg/hostlink"
	"github.com/morezero/httpserver-provider/pkg/listener"
	"github.com/morezero/httpserver-provider/pkg/metrics"
	"github.com/morezero/httpserver-provider/pkg/provider"
)

const logPrefix = "server:server"

// listenerSource is the part of the listener manager the admin pages read.
type listenerSource interface {
	Listeners() []listener.ListenerInfo
}

// Server is the httpserver-provider orchestrator.
type Server struct {
	cfg         *config.Config
	nc          *comms.Conn
	pool        *pgxpool.Pool
	metrics     *metrics.Metrics
	provider    *provider.Provider
	listeners   listenerSource
	link        *hostlink.Link
	controlSub  *comms.Subscription
	adminServer *http.Server
	adminAddr   string
	subject     string
	startedAt   time.Time
	ready       atomic.Bool
	cancel      context.CancelFunc
}

// ParseLogLevel maps LOG_LEVEL to a slog level; unknown values give info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run starts the provider, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting httpserver-provider", logPrefix))

	s, err := Start(context.Background(), cfg)
	if err != nil {
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Start wires every component and returns once the control subject is served
// and the admin server is listening. On error everything already started is torn down.
func Start(ctx context.Context, cfg *config.Config) (*Server, error) {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, cancel: cancel, startedAt: time.Now().UTC()}

	if err := s.start(ctx, baseCtx); err != nil {
		s.Shutdown(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) start(ctx, baseCtx context.Context) error {
	cfg := s.cfg

	// Step 1: Load bootstrap bindings before touching the network.
	bootstrapCfg, err := bootstrap.LoadBootstrapConfig(cfg.BootstrapFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load bootstrap config: %w", logPrefix, err)
	}

	s.subject, err = cfg.ControlSubject()
	if err != nil {
		return fmt.Errorf("%s - failed to derive control subject: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Control subject: %s", logPrefix, s.subject))

	// Step 2: Connect to NATS
	s.nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}

	// Step 3: Optional binding persistence
	var store provider.BindingStore
	if cfg.DatabaseURL != "" {
		s.pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if _, err := db.RunMigrations(ctx, s.pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		store = db.NewBindingRepository(s.pool)
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, bindings will not survive a restart", logPrefix))
	}

	// Step 4: Listener manager and provider facade
	s.metrics = metrics.New()
	manager := listener.NewManager(listener.ManagerOpts{
		Metrics:       s.metrics,
		Publisher:     events.NewCommsPublisher(s.nc, nil),
		ShutdownGrace: cfg.ShutdownGrace,
		Handler: listener.HandlerOptions{
			RequestTimeout: cfg.RequestTimeout,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		},
	})
	s.listeners = manager
	s.provider = provider.New(provider.Params{
		Manager: manager,
		Store:   store,
		Metrics: s.metrics,
	})
	if err := s.provider.ConfigureDispatch(dispatch.NewNATSDispatcher(s.nc, &dispatch.NATSDispatcherOpts{
		SubjectPrefix: cfg.ActorSubjectPrefix,
		Origin:        provider.CapabilityID,
	})); err != nil {
		return fmt.Errorf("%s - failed to configure dispatch: %w", logPrefix, err)
	}

	// Step 5: Restore persisted bindings, then apply bootstrap bindings on top.
	restored, err := s.provider.Restore(ctx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Some persisted bindings could not be restored: %v", logPrefix, err))
	}
	bound, err := bootstrap.Apply(ctx, s.provider, bootstrapCfg)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - %d listeners restored, %d bootstrap bindings applied", logPrefix, restored, bound))

	// Step 6: Serve host control calls
	s.link = hostlink.NewLink(s.provider, &hostlink.LinkOpts{CallTimeout: cfg.ShutdownGrace + cfg.RequestTimeout})
	s.controlSub, err = s.link.Subscribe(baseCtx, s.nc, s.subject)
	if err != nil {
		return err
	}

	// Step 7: Start admin HTTP server
	ln, err := net.Listen("tcp", cfg.AdminAddr)
	if err != nil {
		return fmt.Errorf("%s - failed to bind admin address %s: %w", logPrefix, cfg.AdminAddr, err)
	}
	s.adminAddr = ln.Addr().String()
	s.adminServer = &http.Server{Handler: s.adminMux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - Admin server listening on %s", logPrefix, s.adminAddr))
		if err := s.adminServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - Admin server error: %v", logPrefix, err))
		}
	}()

	s.ready.Store(true)
	slog.Info(fmt.Sprintf("%s - httpserver-provider is ready", logPrefix))
	return nil
}

// AdminAddr returns the address the admin server is bound to.
func (s *Server) AdminAddr() string { return s.adminAddr }

// ControlSubject returns the subject host control calls are served on.
func (s *Server) ControlSubject() string { return s.subject }

// Provider returns the provider facade.
func (s *Server) Provider() *provider.Provider { return s.provider }

// Shutdown stops accepting control calls, stops every listener, and closes
// connections. Persisted bindings are kept so the next start restores them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)

	var errs []error
	if s.controlSub != nil {
		if err := s.controlSub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.link != nil {
		if err := s.link.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.provider != nil {
		if err := s.provider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s - shutdown: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// HealthOutput is the /health body.
type HealthOutput struct {
	Status    string                  `json:"status"`
	Timestamp string                  `json:"timestamp"`
	Checks    HealthChecks            `json:"checks"`
	Listeners []listener.ListenerInfo `json:"listeners"`
}

// HealthChecks lists the dependencies /health looked at.
type HealthChecks struct {
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

func (s *Server) health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Listeners: []listener.ListenerInfo{},
	}
	if s.listeners != nil {
		h.Listeners = s.listeners.Listeners()
	}
	h.Checks.Comms = s.nc != nil && s.nc.IsConnected()
	if !h.Checks.Comms {
		h.Status = "unhealthy"
	}
	if s.pool != nil {
		ok := s.pool.Ping(ctx) == nil
		h.Checks.Database = &ok
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		h := s.health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// homePageTemplate is the HTML for the status page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>HTTP Server Provider</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <p class="meta">Capability {{.CapabilityID}} on {{.Subject}}, up since {{.StartedAt}}.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Listeners</h2>
    <p>Active listeners: <span class="stat">{{len .Health.Listeners}}</span></p>
    {{if not .Health.Listeners}}
    <p>No modules bound.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Module</th><th>Address</th><th>Started</th></tr>
      </thead>
      <tbody>
        {{range .Health.Listeners}}
        <tr>
          <td>{{.Module}}</td>
          <td>{{.Addr}}</td>
          <td>{{.StartedAt.Format "2006-01-02T15:04:05Z07:00"}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Name         string
	CapabilityID string
	Subject      string
	StartedAt    string
	Health       *HealthOutput
}

// handleHome returns an HTTP handler for the status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		data := homeData{
			Name:         provider.ProviderName,
			CapabilityID: provider.CapabilityID,
			Subject:      s.subject,
			StartedAt:    s.startedAt.Format(time.RFC3339),
			Health:       s.health(ctx),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
