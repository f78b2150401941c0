package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
influxdb:
  backend: "influxdb"
  url: "http://influx.local:8086"
  username: "graylogic"
  password: "secret"
  database: "home"
  retention_policy: "autogen"
export:
  queue_capacity: 50
  retry_cooldown: 5s
import:
  max_interval: 1h
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.InfluxDB.Bucket() != "home/autogen" {
		t.Errorf("InfluxDB.Bucket() = %q, want %q", cfg.InfluxDB.Bucket(), "home/autogen")
	}
	if cfg.Export.QueueCapacity != 50 {
		t.Errorf("Export.QueueCapacity = %d, want 50", cfg.Export.QueueCapacity)
	}
	if cfg.Export.RetryCooldown != 5*time.Second {
		t.Errorf("Export.RetryCooldown = %v, want 5s", cfg.Export.RetryCooldown)
	}
	if cfg.Import.MaxInterval != time.Hour {
		t.Errorf("Import.MaxInterval = %v, want 1h", cfg.Import.MaxInterval)
	}
	// Untouched sections keep their defaults.
	if cfg.Import.Tag != "influx-import" {
		t.Errorf("Import.Tag = %q, want default", cfg.Import.Tag)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{
			name: "api disabled needs no secret",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.Security.JWT.Secret = ""
			},
		},
		{name: "unknown backend", mutate: func(c *Config) { c.InfluxDB.Backend = "graphite" }, wantErr: true},
		{name: "bad url", mutate: func(c *Config) { c.InfluxDB.URL = "localhost:8086" }, wantErr: true},
		{name: "missing database", mutate: func(c *Config) { c.InfluxDB.Database = "" }, wantErr: true},
		{
			name: "victoriametrics needs no database",
			mutate: func(c *Config) {
				c.InfluxDB.Backend = BackendVictoriaMetrics
				c.InfluxDB.Database = ""
			},
		},
		{
			name: "token with username",
			mutate: func(c *Config) {
				c.InfluxDB.Token = "t"
				c.InfluxDB.Username = "u"
			},
			wantErr: true,
		},
		{name: "zero queue", mutate: func(c *Config) { c.Export.QueueCapacity = 0 }, wantErr: true},
		{name: "zero cooldown", mutate: func(c *Config) { c.Export.RetryCooldown = 0 }, wantErr: true},
		{name: "zero max interval", mutate: func(c *Config) { c.Import.MaxInterval = 0 }, wantErr: true},
		{name: "empty import tag", mutate: func(c *Config) { c.Import.Tag = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInfluxDBConfig_Bucket(t *testing.T) {
	c := InfluxDBConfig{Database: "home"}
	if got := c.Bucket(); got != "home" {
		t.Errorf("Bucket() = %q, want %q", got, "home")
	}
	c.RetentionPolicy = "one_year"
	if got := c.Bucket(); got != "home/one_year" {
		t.Errorf("Bucket() = %q, want %q", got, "home/one_year")
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_INFLUX_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_INFLUX_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_INFLUX_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_INFLUX_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_INFLUX_INFLUXDB_URL", "https://influx.example.com")
	t.Setenv("GRAYLOGIC_INFLUX_INFLUXDB_PASSWORD", "influxpass")
	t.Setenv("GRAYLOGIC_INFLUX_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_INFLUX_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"InfluxDB.URL", cfg.InfluxDB.URL, "https://influx.example.com"},
		{"InfluxDB.Password", cfg.InfluxDB.Password, "influxpass"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Export.RetryCooldown != 30*time.Second {
		t.Errorf("default RetryCooldown = %v, want 30s", cfg.Export.RetryCooldown)
	}
	if cfg.Import.MaxInterval != 24*time.Hour {
		t.Errorf("default MaxInterval = %v, want 24h", cfg.Import.MaxInterval)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.InfluxDB.Backend != BackendInfluxDB {
		t.Errorf("default InfluxDB.Backend = %q, want %q", cfg.InfluxDB.Backend, BackendInfluxDB)
	}
}
