package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// fakeServer records requests against a minimal InfluxDB v2 HTTP surface.
type fakeServer struct {
	mu         sync.Mutex
	writes     []string
	writeQuery []string
	auth       []string
	queries    []string

	writeStatus int
	queryCSV    string
	health      string
	healthCode  int
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{
		writeStatus: http.StatusNoContent,
		health:      `{"name":"influxdb","message":"ready for queries and writes","status":"pass","checks":[],"version":"1.8.10"}`,
		healthCode:  http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.writeQuery = append(f.writeQuery, r.URL.RawQuery)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		status := f.writeStatus
		f.mu.Unlock()

		if status != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"partial write: field type conflict"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/query", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.queries = append(f.queries, string(body))
		csv := f.queryCSV
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(csv))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		code, body := f.healthCode, f.health
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

// configure mutates the fake under its lock.
func (f *fakeServer) configure(fn func(f *fakeServer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func v1Config(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Backend:         config.BackendInfluxDB,
		URL:             url,
		Username:        "homeseer",
		Password:        "secret",
		Database:        "home",
		RetentionPolicy: "autogen",
		Timeout:         2 * time.Second,
	}
}

func newClient(t *testing.T, cfg config.InfluxDBConfig) *influxdb.Client {
	t.Helper()
	c, err := influxdb.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_InvalidLogin(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.InfluxDBConfig
	}{
		{"empty url", config.InfluxDBConfig{Database: "home"}},
		{"bad scheme", config.InfluxDBConfig{URL: "ftp://host", Database: "home"}},
		{"no host", config.InfluxDBConfig{URL: "http://", Database: "home"}},
		{"no database", config.InfluxDBConfig{URL: "http://localhost:8086"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := influxdb.New(tt.cfg); !errors.Is(err, influxdb.ErrInvalidLogin) {
				t.Errorf("New() error = %v, want ErrInvalidLogin", err)
			}
		})
	}
}

func TestWritePoint_V1Compat(t *testing.T) {
	f, srv := newFakeServer(t)
	c := newClient(t, v1Config(srv.URL))

	p := series.NewPoint("temperature",
		map[string]string{"device_id": "d1", "device_name": "Lounge"},
		map[string]any{"value": 21.5},
		time.Unix(1767225600, 0))

	if err := c.WritePoint(context.Background(), p); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(f.writes))
	}
	line := strings.TrimSpace(f.writes[0])
	want := "temperature,device_id=d1,device_name=Lounge value=21.5 1767225600"
	if line != want {
		t.Errorf("line = %q, want %q", line, want)
	}
	if !strings.Contains(f.writeQuery[0], "bucket=home%2Fautogen") {
		t.Errorf("write query = %q, want bucket home/autogen", f.writeQuery[0])
	}
	if !strings.Contains(f.writeQuery[0], "precision=s") {
		t.Errorf("write query = %q, want second precision", f.writeQuery[0])
	}
	if f.auth[0] != "Token homeseer:secret" {
		t.Errorf("Authorization = %q, want v1 compat token", f.auth[0])
	}
}

func TestWritePoint_Rejected(t *testing.T) {
	f, srv := newFakeServer(t)
	f.configure(func(f *fakeServer) { f.writeStatus = http.StatusBadRequest })
	c := newClient(t, v1Config(srv.URL))

	p := series.NewPoint("m", nil, map[string]any{"v": 1.0}, time.Now())
	err := c.WritePoint(context.Background(), p)
	if !errors.Is(err, influxdb.ErrWriteFailed) {
		t.Errorf("WritePoint() error = %v, want ErrWriteFailed", err)
	}
}

func TestWritePoint_EmptyPoint(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newClient(t, v1Config(srv.URL))

	err := c.WritePoint(context.Background(), series.Point{Measurement: "m"})
	if !errors.Is(err, series.ErrEmptyPoint) {
		t.Errorf("WritePoint() error = %v, want ErrEmptyPoint", err)
	}
}

const fluxResult = "#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,double,string,string\r\n" +
	"#group,false,false,true,true,false,false,true,true\r\n" +
	"#default,_result,,,,,,,\r\n" +
	",result,table,_start,_stop,_time,_value,_field,_measurement\r\n" +
	",,0,2026-01-01T00:00:00Z,2026-01-01T01:00:00Z,2026-01-01T00:30:00Z,42,value,power\r\n" +
	"\r\n"

func TestQueryValue(t *testing.T) {
	f, srv := newFakeServer(t)
	f.configure(func(f *fakeServer) { f.queryCSV = fluxResult })
	c := newClient(t, v1Config(srv.URL))

	got, err := c.QueryValue(context.Background(), `from(bucket:"home/autogen") |> range(start:-1h) |> last()`)
	if err != nil {
		t.Fatalf("QueryValue() error = %v", err)
	}
	if got != 42 {
		t.Errorf("QueryValue() = %v, want 42", got)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) != 1 || !strings.Contains(f.queries[0], "range(start:-1h)") {
		t.Errorf("queries = %v", f.queries)
	}
}

func TestQueryValue_NoData(t *testing.T) {
	f, srv := newFakeServer(t)
	f.configure(func(f *fakeServer) { f.queryCSV = "" })
	c := newClient(t, v1Config(srv.URL))

	_, err := c.QueryValue(context.Background(), `from(bucket:"home") |> range(start:-1h)`)
	if !errors.Is(err, series.ErrNoData) {
		t.Errorf("QueryValue() error = %v, want ErrNoData", err)
	}
}

func TestVersion(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newClient(t, v1Config(srv.URL))

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "1.8.10" {
		t.Errorf("Version() = %q, want 1.8.10", v)
	}
}

func TestVersion_Unhealthy(t *testing.T) {
	f, srv := newFakeServer(t)
	f.configure(func(f *fakeServer) {
		f.health = `{"name":"influxdb","message":"starting","status":"fail"}`
	})
	c := newClient(t, v1Config(srv.URL))

	if _, err := c.Version(context.Background()); !errors.Is(err, influxdb.ErrUnhealthy) {
		t.Errorf("Version() error = %v, want ErrUnhealthy", err)
	}
}

func TestVersion_Unreachable(t *testing.T) {
	_, srv := newFakeServer(t)
	cfg := v1Config(srv.URL)
	srv.Close()

	c := newClient(t, cfg)
	if _, err := c.Version(context.Background()); err == nil {
		t.Error("Version() should fail against a stopped server")
	}
}

func TestClose(t *testing.T) {
	_, srv := newFakeServer(t)
	c := newClient(t, v1Config(srv.URL))

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	p := series.NewPoint("m", nil, map[string]any{"v": 1.0}, time.Now())
	if err := c.WritePoint(context.Background(), p); !errors.Is(err, influxdb.ErrClosed) {
		t.Errorf("WritePoint() after Close = %v, want ErrClosed", err)
	}
}

// TestIntegration_LiveServer runs against the docker-compose InfluxDB.
func TestIntegration_LiveServer(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against a live InfluxDB")
	}

	c := newClient(t, config.InfluxDBConfig{
		Backend:  config.BackendInfluxDB,
		URL:      "http://127.0.0.1:8086",
		Token:    "graylogic-dev-token",
		Org:      "graylogic",
		Database: "metrics",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.Version(ctx); err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	p := series.NewPoint("graylogic_influx_it", map[string]string{"device_id": "it"}, map[string]any{"value": 1.0}, time.Now())
	if err := c.WritePoint(ctx, p); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
}
