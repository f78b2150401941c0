// Package tsdb implements series.Store for VictoriaMetrics.
//
// It writes InfluxDB line protocol to /write and answers import queries with
// PromQL instant queries against /api/v1/query. Only net/http is used.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Backend:  config.BackendVictoriaMetrics,
//	    URL:      "http://localhost:8428",
//	    Database: "home",
//	}
//
//	client, err := tsdb.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// # Semantics
//
// Writes are synchronous, one point per request; the collector owns
// queueing and retry. The database name is sent as the db query argument,
// which VictoriaMetrics stores as a "db" label. Version probes /health.
package tsdb
