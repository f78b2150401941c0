// Package influxdb implements series.Store on top of the official
// influxdb-client-go v2 library.
//
// # Login
//
// A v2 server is addressed with token, org and bucket. An InfluxDB 1.8 server
// is addressed through its v2 compatibility endpoints: leave the token empty,
// set username and password, and the bucket becomes "database/retention".
//
//	cfg := config.InfluxDBConfig{
//	    URL:             "http://localhost:8086",
//	    Username:        "homeseer",
//	    Password:        "secret",
//	    Database:        "home",
//	    RetentionPolicy: "autogen",
//	}
//
//	client, err := influxdb.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// # Writes and Queries
//
// Writes are blocking, one point per request, at second precision; the
// caller owns batching and retry. QueryValue runs a Flux query and returns
// the first record's _value.
//
// # Health
//
// Version calls /health and is used as the reachability probe after a failed
// write.
package influxdb
