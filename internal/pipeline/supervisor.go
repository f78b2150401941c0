package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/importer"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
)

// SettingsSource is the configuration the pipeline is built from.
// *settings.Provider implements it.
type SettingsSource interface {
	Current() *settings.Snapshot
	Subscribe(fn func(*settings.Snapshot)) func()
	ImportDefinition(deviceID string) (importer.Definition, bool)
}

// StatusReporter receives every health signal of a generation plus the
// configuration-changed signal on each swap. *status.Calculator implements it.
type StatusReporter interface {
	export.StatusReporter
	importer.StatusReporter
	ConfigurationChanged()
}

// Options configures New.
type Options struct {
	Settings SettingsSource
	Host     importer.Host
	Status   StatusReporter

	// OpenStore defaults to OpenStore.
	OpenStore StoreOpener

	Export config.ExportConfig
	Import config.ImportConfig

	Logger        *logging.Logger
	ExportMetrics *export.Metrics
	ImportMetrics *importer.Metrics
}

// Supervisor owns the current Generation and replaces it on change.
//
// Thread Safety: All methods are safe for concurrent use. Rebuilds are
// serialised; readers always see a complete generation.
type Supervisor struct {
	settings  SettingsSource
	host      importer.Host
	status    StatusReporter
	openStore StoreOpener
	exportCfg config.ExportConfig
	importCfg config.ImportConfig
	logger    *logging.Logger

	exportMetrics *export.Metrics
	importMetrics *importer.Metrics

	current atomic.Pointer[Generation]
	nextID  atomic.Uint64

	// rebuildMu serialises rebuilds and Close.
	rebuildMu sync.Mutex
	closed    bool

	ctx         context.Context
	cancel      context.CancelFunc
	trigger     chan string
	done        chan struct{}
	unsubscribe func()
}

// New validates opts. Call Start to build the first generation.
func New(opts Options) (*Supervisor, error) {
	if opts.Settings == nil || opts.Host == nil || opts.Status == nil {
		return nil, fmt.Errorf("%w: settings, host and status are required", ErrMissingDependency)
	}
	if opts.OpenStore == nil {
		opts.OpenStore = OpenStore
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Supervisor{
		settings:      opts.Settings,
		host:          opts.Host,
		status:        opts.Status,
		openStore:     opts.OpenStore,
		exportCfg:     opts.Export,
		importCfg:     opts.Import,
		logger:        opts.Logger.Component("pipeline"),
		exportMetrics: opts.ExportMetrics,
		importMetrics: opts.ImportMetrics,
		trigger:       make(chan string, 1),
		done:          make(chan struct{}),
	}, nil
}

// Start builds the first generation and begins rebuilding on every settings
// change. Pollers of every generation run under ctx.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.Rebuild(s.ctx, "startup"); err != nil {
		s.cancel()
		close(s.done)
		return err
	}

	s.unsubscribe = s.settings.Subscribe(func(snap *settings.Snapshot) {
		s.requestRebuild(fmt.Sprintf("settings generation %d", snap.Generation))
	})
	go s.loop()
	return nil
}

// Current returns the running generation, or nil before Start.
func (s *Supervisor) Current() *Generation {
	return s.current.Load()
}

// Rebuild constructs a new generation from the latest snapshot and swaps it
// in. When construction fails the running generation is kept.
//
// The new generation reports no health signals until the previous one is
// closed and the status has been reset, so nothing it reports is cleared.
func (s *Supervisor) Rebuild(ctx context.Context, reason string) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	snap := s.settings.Current()
	id := s.nextID.Add(1)
	next, err := s.buildGeneration(ctx, id, snap)
	if err != nil {
		s.logger.Error("pipeline rebuild failed, keeping previous generation",
			"reason", reason, "generation", id, "error", err)
		return fmt.Errorf("building generation %d: %w", id, err)
	}

	prev := s.current.Swap(next)
	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("closing previous generation", "generation", prev.ID, "error", err)
		}
		s.status.ConfigurationChanged()
	}
	next.start()

	s.logger.Info("pipeline generation started",
		"reason", reason,
		"generation", id,
		"settings_generation", snap.Generation,
		"rules", snap.Rules.Len(),
		"import_devices", len(next.Importer.DeviceIDs()),
	)
	return nil
}

// Close stops the rebuild loop and the current generation.
func (s *Supervisor) Close() error {
	s.rebuildMu.Lock()
	if s.closed {
		s.rebuildMu.Unlock()
		return nil
	}
	s.closed = true
	s.rebuildMu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	if g := s.current.Swap(nil); g != nil {
		return g.Close()
	}
	return nil
}

// IsTracked reports whether the current generation exports kind for deviceID.
func (s *Supervisor) IsTracked(deviceID string, kind export.ValueKind) bool {
	g := s.current.Load()
	return g != nil && g.Collector.IsTracked(deviceID, kind)
}

// Record hands rec to the current collector. A record that races a swap is
// retried once on the new generation.
func (s *Supervisor) Record(ctx context.Context, rec export.Record) {
	for range 2 {
		g := s.current.Load()
		if g == nil {
			return
		}
		_, err := g.Collector.Record(ctx, rec)
		if err == nil {
			return
		}
		if errors.Is(err, export.ErrClosed) {
			continue
		}
		if ctx.Err() == nil {
			s.logger.Warn("recording device value failed", "device_id", rec.DeviceID, "error", err)
		}
		return
	}
}

// DeviceDeleted rebuilds the pipeline when the deleted device was an import
// device of the current generation.
func (s *Supervisor) DeviceDeleted(_ context.Context, deviceID string) {
	g := s.current.Load()
	if g == nil || !g.Importer.HasDevice(deviceID) {
		return
	}
	s.requestRebuild("import device " + deviceID + " deleted")
}

// PollNow runs one import for deviceID in the current generation.
func (s *Supervisor) PollNow(ctx context.Context, deviceID string) bool {
	g := s.current.Load()
	return g != nil && g.Importer.ImportDataForDevice(ctx, deviceID)
}

// Pending returns the current collector's queue length.
func (s *Supervisor) Pending() int {
	if g := s.current.Load(); g != nil {
		return g.Collector.Pending()
	}
	return 0
}

// ImportDeviceIDs returns the devices polled by the current generation.
func (s *Supervisor) ImportDeviceIDs() []string {
	if g := s.current.Load(); g != nil {
		return g.Importer.DeviceIDs()
	}
	return []string{}
}

// requestRebuild coalesces rebuild requests; it never blocks.
func (s *Supervisor) requestRebuild(reason string) {
	select {
	case s.trigger <- reason:
	default:
	}
}

func (s *Supervisor) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case reason := <-s.trigger:
			if err := s.Rebuild(s.ctx, reason); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.Debug("rebuild not applied", "reason", reason, "error", err)
			}
		}
	}
}
