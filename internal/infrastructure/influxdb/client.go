package influxdb

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// defaultTimeout applies when the configuration leaves the timeout unset.
const defaultTimeout = 10 * time.Second

// applicationName is sent in the User-Agent header.
const applicationName = "graylogic-influx"

// Client is a series.Store backed by InfluxDB.
//
// It speaks the v2 HTTP API, which InfluxDB 1.8+ also serves: with a username
// the token becomes "username:password" and the bucket "database/retention".
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	cfg      config.InfluxDBConfig

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ series.Store = (*Client)(nil)

// New builds a client from login information. It does not contact the
// server; reachability is reported by Version.
func New(cfg config.InfluxDBConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: url %q", ErrInvalidLogin, cfg.URL)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("%w: database is required", ErrInvalidLogin)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// #nosec G115 -- timeout is positive
	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(timeout / time.Second)).
		SetPrecision(time.Second).
		SetApplicationName(applicationName)

	client := influxdb2.NewClientWithOptions(cfg.URL, authToken(cfg), opts)

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket()),
		queryAPI: client.QueryAPI(cfg.Org),
		cfg:      cfg,
	}, nil
}

// authToken returns the v2 token, or the 1.x compatibility token when a
// username is configured.
func authToken(cfg config.InfluxDBConfig) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	if cfg.Username != "" {
		return cfg.Username + ":" + cfg.Password
	}
	return ""
}

// WritePoint writes p synchronously.
func (c *Client) WritePoint(ctx context.Context, p series.Point) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	point := write.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time)
	if err := c.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// QueryValue runs a Flux query and returns the _value of its first record.
func (c *Client) QueryValue(ctx context.Context, query string) (float64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	if result.Next() {
		return series.ToFloat(result.Record().Value())
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return 0, series.ErrNoData
}

// Version probes /health and returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}

	health, err := c.client.Health(ctx)
	if err != nil {
		return "", fmt.Errorf("influxdb health check failed: %w", err)
	}
	if health.Status != domain.HealthCheckStatusPass {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return "", fmt.Errorf("%w: %s %s", ErrUnhealthy, health.Status, msg)
	}

	if health.Version == nil {
		return "", nil
	}
	return *health.Version, nil
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.client.Close()
	})
	return nil
}
