package importer

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// DefaultMaxInterval caps every poll interval.
const DefaultMaxInterval = 24 * time.Hour

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Host is the part of the host device API the importer drives.
type Host interface {
	// ListImportDevices returns the ids of devices marked for import.
	ListImportDevices(ctx context.Context) ([]string, error)
	// SetImportValue stores a polled value on the device. A nil value marks
	// the device's value invalid.
	SetImportValue(ctx context.Context, deviceID string, value *float64, unit string) error
	// MigrateLegacyImports converts devices from the legacy import marking.
	// It must be idempotent.
	MigrateLegacyImports(ctx context.Context) (int, error)
}

// DefinitionSource resolves the current definition for a device. A missing
// definition means the device is no longer imported.
type DefinitionSource interface {
	ImportDefinition(deviceID string) (Definition, bool)
}

// StatusReporter receives per-device poll outcomes.
type StatusReporter interface {
	DeviceErrored(deviceID string)
	DeviceWorked(deviceID string)
}

// Options configures New.
type Options struct {
	Host        Host
	Store       series.Querier
	Definitions DefinitionSource
	Status      StatusReporter

	// MaxInterval caps every poll interval. Default DefaultMaxInterval.
	MaxInterval time.Duration
	// Paused defers the poll loops until Resume is called.
	Paused bool

	Logger  Logger
	Metrics *Metrics
}

// Manager owns the poll loops of one configuration generation.
//
// Thread Safety: the device set is immutable after New returns; all methods
// are safe for concurrent use.
type Manager struct {
	host        Host
	store       series.Querier
	defs        DefinitionSource
	status      StatusReporter
	maxInterval time.Duration
	logger      Logger
	metrics     *Metrics

	devices map[string]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	runMu     sync.Mutex
	running   atomic.Bool
	closeOnce sync.Once
}

// New migrates legacy import devices, enumerates the current ones and starts
// a poll loop for each device that has a definition, unless opts.Paused is
// set. The loops run until ctx is cancelled or Close is called.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("%w: host", ErrMissingDependency)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	}
	if opts.Definitions == nil {
		return nil, fmt.Errorf("%w: definitions", ErrMissingDependency)
	}
	if opts.Status == nil {
		return nil, fmt.Errorf("%w: status", ErrMissingDependency)
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	m := &Manager{
		host:        opts.Host,
		store:       opts.Store,
		defs:        opts.Definitions,
		status:      opts.Status,
		maxInterval: opts.MaxInterval,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		devices:     make(map[string]struct{}),
	}

	if n, err := m.host.MigrateLegacyImports(ctx); err != nil {
		m.logger.Warn("legacy import migration failed", "error", err)
	} else if n > 0 {
		m.logger.Info("migrated legacy import devices", "count", n)
	}

	ids, err := m.host.ListImportDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing import devices: %w", err)
	}
	for _, id := range ids {
		if _, ok := m.defs.ImportDefinition(id); !ok {
			m.logger.Debug("import device has no definition, skipping", "device_id", id)
			continue
		}
		m.devices[id] = struct{}{}
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	if !opts.Paused {
		m.Resume()
	}

	m.logger.Info("import manager started", "devices", len(m.devices), "paused", opts.Paused)
	return m, nil
}

// Resume starts the poll loops of a manager created with Paused and publishes
// the device count. It has no effect once the loops run or after Close.
func (m *Manager) Resume() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running.Load() || m.ctx.Err() != nil {
		return
	}
	m.running.Store(true)
	for id := range m.devices {
		m.wg.Add(1)
		go m.pollLoop(id)
	}
	m.metrics.setDevices(len(m.devices))
}

// HasDevice reports whether id has a poll loop in this generation.
func (m *Manager) HasDevice(id string) bool {
	_, ok := m.devices[id]
	return ok
}

// DeviceIDs returns the sorted ids of managed devices.
func (m *Manager) DeviceIDs() []string {
	ids := slices.Collect(maps.Keys(m.devices))
	slices.Sort(ids)
	return ids
}

// ImportDataForDevice runs one query for id immediately, outside the poll
// loop's schedule. It returns false when id is not managed, its definition is
// gone or the manager is paused or closed.
func (m *Manager) ImportDataForDevice(ctx context.Context, id string) bool {
	if !m.HasDevice(id) || !m.running.Load() || m.ctx.Err() != nil {
		return false
	}
	def, ok := m.defs.ImportDefinition(id)
	if !ok {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	m.importOnce(runCtx, def)
	return true
}

// Close cancels every poll loop and waits for them to return. The shared
// device gauge is left to the next generation.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.runMu.Lock()
		m.wg.Wait()
		m.runMu.Unlock()
		m.logger.Info("import manager stopped")
	})
}

func (m *Manager) pollLoop(id string) {
	defer m.wg.Done()

	for {
		def, ok := m.defs.ImportDefinition(id)
		if !ok {
			m.logger.Info("import definition removed, stopping poll loop", "device_id", id)
			return
		}

		m.importOnce(m.ctx, def)

		wait := effectiveInterval(def.Interval, m.maxInterval)
		timer := time.NewTimer(wait)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// importOnce queries the store and hands the result to the host.
func (m *Manager) importOnce(ctx context.Context, def Definition) {
	value, err := m.store.QueryValue(ctx, def.Query)
	if ctx.Err() != nil {
		return
	}

	var result *float64
	if err != nil {
		m.logger.Warn("import query failed",
			"device_id", def.DeviceID,
			"query", def.Query,
			"error", err,
		)
		m.status.DeviceErrored(def.DeviceID)
	} else {
		result = &value
		m.status.DeviceWorked(def.DeviceID)
	}
	m.metrics.poll(err != nil)

	if err := m.host.SetImportValue(ctx, def.DeviceID, result, def.Unit); err != nil && ctx.Err() == nil {
		m.logger.Warn("updating import device failed", "device_id", def.DeviceID, "error", err)
	}
}
