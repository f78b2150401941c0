package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/audit"
	"github.com/nerrad567/gray-logic-influx/internal/auth"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
	"github.com/nerrad567/gray-logic-influx/internal/status"
)

const testSecret = "test-secret-for-development-only-0123456789"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_INFLUX_CONFIG", path)
	return path
}

func validConfig(dbPath string) string {
	return `
site:
  id: test-site
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "test-client"
  qos: 1
influxdb:
  backend: influxdb
  url: "http://127.0.0.1:1"
  database: graylogic
logging:
  level: error
  format: text
api:
  enabled: true
  port: 8091
security:
  jwt:
    secret: "` + testSecret + `"
    access_token_ttl: 5
`
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_INFLUX_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("GRAYLOGIC_INFLUX_CONFIG", "/etc/graylogic/influx.yaml")
	if got := getConfigPath(); got != "/etc/graylogic/influx.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_INFLUX_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want a config error", err)
	}
}

func TestRun_UnknownBackend(t *testing.T) {
	writeConfig(t, strings.Replace(validConfig(filepath.Join(t.TempDir(), "b.db")),
		"backend: influxdb", "backend: graphite", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "influxdb.backend") {
		t.Fatalf("run() error = %v, want backend validation error", err)
	}
}

func TestRun_MQTTUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the MQTT connect timeout")
	}
	dbPath := filepath.Join(t.TempDir(), "bridge.db")
	writeConfig(t, validConfig(dbPath))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "connecting to MQTT") {
		t.Fatalf("run() error = %v, want MQTT connection error", err)
	}
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("database should have been created before MQTT: %v", statErr)
	}
}

func TestIssueToken(t *testing.T) {
	writeConfig(t, validConfig(filepath.Join(t.TempDir(), "t.db")))

	var out bytes.Buffer
	if err := issueToken(&out, []string{"ops", "admin"}); err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if left := time.Until(claims.ExpiresAt.Time); left > 5*time.Minute {
		t.Errorf("token lifetime %v exceeds configured 5m", left)
	}
}

func TestIssueToken_DefaultsToViewer(t *testing.T) {
	writeConfig(t, validConfig(filepath.Join(t.TempDir(), "t.db")))

	var out bytes.Buffer
	if err := issueToken(&out, []string{"dashboard"}); err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Role != auth.RoleViewer {
		t.Errorf("role = %q, want viewer", claims.Role)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	writeConfig(t, validConfig(filepath.Join(t.TempDir(), "t.db")))

	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"too many args", []string{"a", "admin", "extra"}},
		{"unknown role", []string{"ops", "owner"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := issueToken(&out, tt.args); err == nil {
				t.Errorf("issueToken(%v) should fail", tt.args)
			}
			if out.Len() != 0 {
				t.Errorf("issueToken(%v) printed %q", tt.args, out.String())
			}
		})
	}
}

func TestReload_RecordsAudit(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "reload.db")
	configPath := writeConfig(t, validConfig(dbPath))

	db, err := database.Open(config.DatabaseConfig{Path: dbPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	provider, err := settings.NewProvider(ctx,
		settings.NewSQLiteRuleRepository(db.DB),
		settings.NewSQLiteImportRepository(db.DB),
		config.InfluxDBConfig{Backend: config.BackendInfluxDB, URL: "http://127.0.0.1:2", Database: "old"},
	)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	trail := audit.NewSQLiteRepository(db.DB)
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", &bytes.Buffer{})

	reload(ctx, configPath, provider, trail, log)
	if got := provider.Current().Login.Database; got != "graylogic" {
		t.Errorf("login database after reload = %q, want graylogic", got)
	}

	reload(ctx, filepath.Join(t.TempDir(), "missing.yaml"), provider, trail, log)
	if got := provider.Current().Login.Database; got != "graylogic" {
		t.Errorf("login database after failed reload = %q, want it kept", got)
	}

	res, err := trail.List(ctx, audit.Filter{Action: audit.ActionReload})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("reload entries = %d, want 2", res.Total)
	}
	if res.Entries[0].Details["login"] != "kept" || res.Entries[1].Details["login"] != "applied" {
		t.Errorf("reload details = %v / %v", res.Entries[0].Details, res.Entries[1].Details)
	}
	if res.Entries[0].Source != audit.SourceSignal {
		t.Errorf("source = %q, want %q", res.Entries[0].Source, audit.SourceSignal)
	}
}

func TestOfferLatest_KeepsNewestState(t *testing.T) {
	ch := make(chan status.State, 1)

	offerLatest(ch, status.State{Level: status.LevelWarning})
	offerLatest(ch, status.State{Level: status.LevelCritical})
	offerLatest(ch, status.State{Level: status.LevelOK, ErroredDevices: []string{}})

	if n := len(ch); n != 1 {
		t.Fatalf("pending states = %d, want 1", n)
	}
	if got := (<-ch).Level; got != status.LevelOK {
		t.Errorf("pending level = %v, want ok", got)
	}

	offerLatest(ch, status.State{Level: status.LevelCritical})
	if got := (<-ch).Level; got != status.LevelCritical {
		t.Errorf("pending level after drain = %v, want critical", got)
	}
}
