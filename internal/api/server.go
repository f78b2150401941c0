package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-influx/internal/audit"
	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/importer"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
	"github.com/nerrad567/gray-logic-influx/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Settings is the configuration store behind the rule and import endpoints.
// *settings.Provider implements it.
type Settings interface {
	Current() *settings.Snapshot
	Subscribe(fn func(*settings.Snapshot)) func()
	SaveRule(ctx context.Context, rule export.Rule) (export.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	SaveImport(ctx context.Context, d importer.Definition) error
	DeleteImport(ctx context.Context, deviceID string) error
}

// Pipeline is the running export/import pipeline. *pipeline.Supervisor
// implements it.
type Pipeline interface {
	Pending() int
	ImportDeviceIDs() []string
	PollNow(ctx context.Context, deviceID string) bool
}

// StatusSource reports bridge health. *status.Calculator implements it.
type StatusSource interface {
	State() status.State
	Subscribe(fn func(status.State)) func()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Settings Settings
	Pipeline Pipeline
	Status   StatusSource
	Audit    audit.Repository    // optional; nil disables the audit trail
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Version  string
}

// Server is the admin HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	settings  Settings
	pipeline  Pipeline
	status    StatusSource
	audit     audit.Repository
	gatherer  prometheus.Gatherer
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc // cancels background goroutines on Close()
	unsubs    []func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Settings == nil || deps.Pipeline == nil || deps.Status == nil {
		return nil, fmt.Errorf("settings, pipeline and status are required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	logger := deps.Logger.Component("api")
	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    logger,
		settings:  deps.Settings,
		pipeline:  deps.Pipeline,
		status:    deps.Status,
		audit:     deps.Audit,
		gatherer:  deps.Gatherer,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(logger),
		tickets:   newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays health transitions to it, and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	s.unsubs = append(s.unsubs,
		s.status.Subscribe(s.broadcastStatus),
		s.settings.Subscribe(s.broadcastConfig),
	)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
