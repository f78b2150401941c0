package pipeline

import (
	"fmt"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// StoreOpener creates a store client from login information.
type StoreOpener func(cfg config.InfluxDBConfig) (series.Store, error)

// OpenStore opens a client for the configured backend.
func OpenStore(cfg config.InfluxDBConfig) (series.Store, error) {
	switch cfg.Backend {
	case config.BackendVictoriaMetrics:
		c, err := tsdb.New(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendInfluxDB, "":
		c, err := influxdb.New(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
