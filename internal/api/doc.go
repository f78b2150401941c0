// Package api implements the admin HTTP API and WebSocket status stream of
// the InfluxDB bridge.
//
// This package provides:
//   - REST endpoints for persistence rules and import definitions
//   - a status endpoint and a poll-now trigger for import devices
//   - a WebSocket hub that pushes health transitions to subscribed clients
//   - Prometheus metrics at /metrics
//
// # Security
//
// Every /api/v1 route except /health requires a bearer token issued by the
// auth package. Reads need the viewer role; configuration changes and poll
// triggers need admin. WebSocket connections use single-use tickets so the
// token never appears in a URL.
//
// Configuration changes are applied through the settings provider; the
// pipeline picks them up on its own, so handlers never touch the running
// collector or importer directly.
package api
