package tsdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// defaultTimeout applies when the configuration leaves the timeout unset.
const defaultTimeout = 10 * time.Second

// Client is a series.Store backed by VictoriaMetrics.
//
// Points go to the InfluxDB-compatible /write endpoint as line protocol, one
// point per request. Queries are PromQL instant queries.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	url        string
	database   string
	username   string
	password   string
	httpClient *http.Client

	closed atomic.Bool
}

var _ series.Store = (*Client)(nil)

// New builds a client from login information. It does not contact the
// server; reachability is reported by Version.
func New(cfg config.InfluxDBConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: url %q", ErrInvalidLogin, cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		database:   cfg.Database,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// WritePoint posts p as one line of line protocol.
func (c *Client) WritePoint(ctx context.Context, p series.Point) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	endpoint := c.url + "/write"
	if c.database != "" {
		endpoint += "?" + url.Values{"db": {c.database}}.Encode()
	}

	line := formatLineProtocol(p.Measurement, p.Tags, p.Fields, p.Time)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(line))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	req.Header.Set("Content-Type", "text/plain")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrWriteFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Version checks /health. VictoriaMetrics does not report a version there, so
// a healthy server yields an empty string.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return "", fmt.Errorf("tsdb health check: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tsdb health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return "", nil
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
