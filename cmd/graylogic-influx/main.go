// Gray Logic InfluxDB Bridge
//
// This is the main entry point of the telemetry bridge between Gray Logic
// Core and a time-series database. It exports device value changes selected
// by persistence rules and imports query results back into import devices.
//
// Usage:
//
//	graylogic-influx                      run the bridge
//	graylogic-influx token <subject> [role]  print an admin API token
//
// The configuration file is read from GRAYLOGIC_INFLUX_CONFIG, falling back
// to configs/config.yaml. SIGHUP reloads store login information and the
// stored rules and import definitions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-influx/migrations"

	"github.com/nerrad567/gray-logic-influx/internal/api"
	"github.com/nerrad567/gray-logic-influx/internal/audit"
	"github.com/nerrad567/gray-logic-influx/internal/auth"
	"github.com/nerrad567/gray-logic-influx/internal/device"
	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/host"
	"github.com/nerrad567/gray-logic-influx/internal/importer"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-influx/internal/pipeline"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
	"github.com/nerrad567/gray-logic-influx/internal/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// storeProbeTimeout bounds the startup reachability check of the store.
const storeProbeTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring: each step has its own teardown
	log := logging.Default()
	log.Info("starting Gray Logic InfluxDB bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"backend", cfg.InfluxDB.Backend,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device catalogue
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), device.NewSQLiteTagRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Health
	calc := status.New()
	calc.SetLogger(log.Component("status"))
	calc.SetMetrics(status.NewMetrics(reg))

	// Settings
	provider, err := settings.NewProvider(ctx,
		settings.NewSQLiteRuleRepository(db.DB),
		settings.NewSQLiteImportRepository(db.DB),
		cfg.InfluxDB,
	)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	provider.SetLogger(log.Component("settings"))
	snap := provider.Current()
	log.Info("settings loaded", "rules", snap.Rules.Len(), "imports", len(snap.Imports))

	probeStore(ctx, cfg.InfluxDB, log)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connection (re)established", "subscriptions", len(mqttClient.Subscriptions()))
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridgeHost, err := host.New(host.Options{
		Bus:       mqttClient,
		Devices:   registry,
		ImportTag: cfg.Import.Tag,
		QoS:       byte(cfg.MQTT.QoS), //nolint:gosec // QoS validated to 0-2
		Logger:    log.Component("host"),
	})
	if err != nil {
		return fmt.Errorf("creating host: %w", err)
	}

	// Pipeline
	supervisor, err := pipeline.New(pipeline.Options{
		Settings:      provider,
		Host:          bridgeHost,
		Status:        calc,
		Export:        cfg.Export,
		Import:        cfg.Import,
		Logger:        log,
		ExportMetrics: export.NewMetrics(reg),
		ImportMetrics: importer.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}
	if startErr := supervisor.Start(ctx); startErr != nil {
		return fmt.Errorf("starting pipeline: %w", startErr)
	}
	defer func() {
		log.Info("stopping pipeline")
		if closeErr := supervisor.Close(); closeErr != nil {
			log.Error("error stopping pipeline", "error", closeErr)
		}
	}()

	if startErr := bridgeHost.Start(ctx, supervisor); startErr != nil {
		return fmt.Errorf("starting host: %w", startErr)
	}
	defer bridgeHost.Stop()

	// Subscribers must not block; the publisher only needs the latest state.
	healthUpdates := make(chan status.State, 1)
	unsubHealth := calc.Subscribe(func(s status.State) {
		offerLatest(healthUpdates, s)
	})
	defer unsubHealth()
	go bridgeHost.RunHealthPublisher(ctx, healthUpdates)
	if pubErr := bridgeHost.PublishHealth(calc.State()); pubErr != nil {
		log.Warn("publishing initial health failed", "error", pubErr)
	}

	// Admin API
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Security: cfg.Security,
			Logger:   log,
			Settings: provider,
			Pipeline: supervisor,
			Status:   calc,
			Audit:    auditRepo,
			Gatherer: reg,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("admin API disabled")
	}

	if healthErr := healthCheck(ctx, db, mqttClient); healthErr != nil {
		return fmt.Errorf("health check failed: %w", healthErr)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			return nil
		case <-hup:
			reload(ctx, configPath, provider, auditRepo, log)
		}
	}
}

// offerLatest leaves s as the only pending state in ch, replacing any state
// the publisher has not taken yet. ch must have capacity 1 and a single
// sender at a time.
func offerLatest(ch chan status.State, s status.State) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// reload re-reads the store login from the configuration file and the
// stored settings from the database. A bad file keeps the current login.
func reload(ctx context.Context, configPath string, provider *settings.Provider, trail audit.Repository, log *logging.Logger) {
	log.Info("reload requested")
	entry := &audit.Entry{Action: audit.ActionReload, EntityType: audit.EntityConfig, Source: audit.SourceSignal}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("reloading config failed, keeping current login", "error", err)
		entry.Details = map[string]any{"login": "kept", "error": err.Error()}
		if reloadErr := provider.Reload(ctx); reloadErr != nil {
			log.Error("reloading settings failed", "error", reloadErr)
		}
	} else {
		entry.Details = map[string]any{"login": "applied", "backend": cfg.InfluxDB.Backend}
		if err := provider.SetLogin(ctx, cfg.InfluxDB); err != nil {
			log.Error("applying store login failed", "error", err)
			entry.Details["error"] = err.Error()
		}
	}

	if err := trail.Create(ctx, entry); err != nil {
		log.Warn("writing audit entry failed", "action", entry.Action, "error", err)
	}
}

// probeStore logs whether the time-series store answers. The bridge starts
// either way; exports queue until the store is reachable.
func probeStore(ctx context.Context, login config.InfluxDBConfig, log *logging.Logger) {
	store, err := pipeline.OpenStore(login)
	if err != nil {
		log.Warn("store client unavailable", "error", err)
		return
	}
	defer store.Close() //nolint:errcheck // probe client

	probeCtx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	defer cancel()
	ver, err := store.Version(probeCtx)
	if err != nil {
		log.Warn("time-series store not reachable yet", "url", login.URL, "error", err)
		return
	}
	log.Info("time-series store reachable", "url", login.URL, "version", ver)
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_INFLUX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_INFLUX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// issueToken prints an admin API token signed with the configured secret.
// args are the subject and an optional role (default viewer).
func issueToken(out io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: graylogic-influx token <subject> [viewer|admin]")
	}
	role := auth.RoleViewer
	if len(args) == 2 {
		role = auth.Role(args[1])
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ttl := time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	token, err := auth.GenerateAccessToken(args[0], role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
