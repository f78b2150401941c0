// Package series defines the time-series store contract shared by the export
// and import paths of the bridge.
//
// A Store accepts single points, answers scalar queries and reports the server
// version. Concrete stores live under internal/infrastructure (influxdb for
// InfluxDB 1.8/2.x, tsdb for VictoriaMetrics).
//
// # Points
//
// A Point carries a measurement name, a field map, a tag map and a UTC
// timestamp truncated to second precision:
//
//	p := series.NewPoint("temperature",
//	    map[string]string{"device_id": "thermostat-01"},
//	    map[string]any{"value": 21.5},
//	    time.Now())
//
// # Thread Safety
//
// Point values are plain data. Store implementations must be safe for
// concurrent use.
package series
