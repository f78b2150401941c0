package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/importer"
	"github.com/nerrad567/gray-logic-influx/internal/series"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
)

// Generation is the pipeline built from one settings snapshot.
type Generation struct {
	ID        uint64
	Snapshot  *settings.Snapshot
	Collector *export.Collector
	Importer  *importer.Manager
	Started   time.Time

	importStore series.Store
	closeOnce   sync.Once
	closeErr    error
}

// buildGeneration opens one store client per half so neither can close the
// other's connection. The generation is built paused: records queue up but
// nothing is delivered or polled until start.
func (s *Supervisor) buildGeneration(ctx context.Context, id uint64, snap *settings.Snapshot) (*Generation, error) {
	exportStore, err := s.openStore(snap.Login)
	if err != nil {
		return nil, fmt.Errorf("opening export store: %w", err)
	}
	collector, err := export.NewCollector(export.CollectorOptions{
		Store:         exportStore,
		Rules:         snap.Rules,
		Status:        s.status,
		QueueCapacity: s.exportCfg.QueueCapacity,
		RetryCooldown: s.exportCfg.RetryCooldown,
		Paused:        true,
		Logger:        s.logger.Component("collector", "generation", id),
		Metrics:       s.exportMetrics,
	})
	if err != nil {
		exportStore.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating collector: %w", err)
	}

	importStore, err := s.openStore(snap.Login)
	if err != nil {
		collector.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("opening import store: %w", err)
	}
	manager, err := importer.New(ctx, importer.Options{
		Host:        s.host,
		Store:       importStore,
		Definitions: s.settings,
		Status:      s.status,
		MaxInterval: s.importCfg.MaxInterval,
		Paused:      true,
		Logger:      s.logger.Component("importer", "generation", id),
		Metrics:     s.importMetrics,
	})
	if err != nil {
		collector.Close()   //nolint:errcheck // best effort cleanup on error path
		importStore.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating import manager: %w", err)
	}

	return &Generation{
		ID:          id,
		Snapshot:    snap,
		Collector:   collector,
		Importer:    manager,
		Started:     time.Now().UTC(),
		importStore: importStore,
	}, nil
}

// start releases the drain loop and the poll loops.
func (g *Generation) start() {
	g.Collector.Resume()
	g.Importer.Resume()
}

// Close stops pollers first, then the collector (which closes its own
// store), then the import store. Safe to call more than once.
func (g *Generation) Close() error {
	g.closeOnce.Do(func() {
		g.Importer.Close()
		var errs []error
		if err := g.Collector.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := g.importStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing import store: %w", err))
		}
		g.closeErr = errors.Join(errs...)
	})
	return g.closeErr
}
