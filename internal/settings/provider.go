package settings

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/importer"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Provider.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Snapshot is one immutable configuration state. Callers must not modify it.
type Snapshot struct {
	// Generation increases by one with every published snapshot.
	Generation uint64
	Login      config.InfluxDBConfig
	Rules      *export.RuleSet
	Imports    map[string]importer.Definition
}

// ImportDefinition returns the definition for deviceID.
func (s *Snapshot) ImportDefinition(deviceID string) (importer.Definition, bool) {
	d, ok := s.Imports[deviceID]
	return d, ok
}

// ImportDeviceIDs returns the sorted ids of devices with a definition.
func (s *Snapshot) ImportDeviceIDs() []string {
	return slices.Sorted(maps.Keys(s.Imports))
}

// Provider builds and publishes configuration snapshots.
//
// Thread Safety: All methods are safe for concurrent use. Subscribers run
// outside the mutation lock, one notification at a time, in publish order.
type Provider struct {
	rules   RuleRepository
	imports ImportRepository
	logger  Logger

	// mu serialises mutations and snapshot construction.
	mu      sync.Mutex
	login   config.InfluxDBConfig
	current atomic.Pointer[Snapshot]

	// notifyMu serialises subscriber calls.
	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     map[uint64]func(*Snapshot)
	nextSub  uint64
}

// NewProvider loads rules and import definitions and publishes the first
// snapshot. Invalid stored rows fail construction.
func NewProvider(ctx context.Context, rules RuleRepository, imports ImportRepository, login config.InfluxDBConfig) (*Provider, error) {
	if err := login.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLogin, err)
	}
	p := &Provider{
		rules:   rules,
		imports: imports,
		logger:  noopLogger{},
		login:   login,
		subs:    make(map[uint64]func(*Snapshot)),
	}

	snap, err := p.build(ctx, login)
	if err != nil {
		return nil, err
	}
	p.current.Store(snap)
	return p, nil
}

// SetLogger sets the logger for snapshot changes.
func (p *Provider) SetLogger(logger Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Current returns the latest snapshot.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// ImportDefinition looks deviceID up in the latest snapshot.
func (p *Provider) ImportDefinition(deviceID string) (importer.Definition, bool) {
	return p.Current().ImportDefinition(deviceID)
}

// Subscribe registers fn for every future snapshot. It returns a function
// that removes the subscription.
func (p *Provider) Subscribe(fn func(*Snapshot)) func() {
	p.subsMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subsMu.Unlock()

	return func() {
		p.subsMu.Lock()
		delete(p.subs, id)
		p.subsMu.Unlock()
	}
}

// Reload re-reads the database and publishes a new snapshot.
func (p *Provider) Reload(ctx context.Context) error {
	return p.mutate(ctx, "reload", nil)
}

// SetLogin replaces the store login information.
func (p *Provider) SetLogin(ctx context.Context, login config.InfluxDBConfig) error {
	if err := login.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogin, err)
	}
	return p.mutate(ctx, "login changed", func() error {
		p.login = login
		return nil
	})
}

// SaveRule validates and stores a rule, then publishes a new snapshot. An
// empty ID creates a new rule.
func (p *Provider) SaveRule(ctx context.Context, rule export.Rule) (export.Rule, error) {
	if err := rule.Validate(); err != nil {
		return export.Rule{}, err
	}
	var saved export.Rule
	err := p.mutate(ctx, "rule saved", func() error {
		var err error
		saved, err = p.rules.Save(ctx, rule)
		return err
	})
	return saved, err
}

// DeleteRule removes a rule and publishes a new snapshot.
func (p *Provider) DeleteRule(ctx context.Context, id string) error {
	return p.mutate(ctx, "rule deleted", func() error {
		return p.rules.Delete(ctx, id)
	})
}

// SaveImport validates and stores an import definition, then publishes a
// new snapshot.
func (p *Provider) SaveImport(ctx context.Context, d importer.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return p.mutate(ctx, "import saved", func() error {
		return p.imports.Save(ctx, d)
	})
}

// DeleteImport removes an import definition and publishes a new snapshot.
func (p *Provider) DeleteImport(ctx context.Context, deviceID string) error {
	return p.mutate(ctx, "import deleted", func() error {
		return p.imports.Delete(ctx, deviceID)
	})
}

// mutate applies change, rebuilds the snapshot and notifies subscribers.
// When change fails nothing is published.
func (p *Provider) mutate(ctx context.Context, reason string, change func() error) error {
	p.mu.Lock()
	if change != nil {
		if err := change(); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	snap, err := p.build(ctx, p.login)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	snap.Generation = p.current.Load().Generation + 1
	p.current.Store(snap)
	logger := p.logger
	// Taking notifyMu before releasing mu keeps notifications in publish order.
	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()

	logger.Info("configuration changed",
		"reason", reason,
		"generation", snap.Generation,
		"rules", snap.Rules.Len(),
		"rules_version", snap.Rules.Version(),
		"imports", len(snap.Imports),
	)

	p.subsMu.Lock()
	subs := slices.Collect(maps.Values(p.subs))
	p.subsMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

func (p *Provider) build(ctx context.Context, login config.InfluxDBConfig) (*Snapshot, error) {
	rules, err := p.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	ruleSet, err := export.NewRuleSet(rules)
	if err != nil {
		return nil, fmt.Errorf("building rule set: %w", err)
	}

	defs, err := p.imports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading import definitions: %w", err)
	}
	imports := make(map[string]importer.Definition, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("import definition %s: %w", d.DeviceID, err)
		}
		imports[d.DeviceID] = d
	}

	return &Snapshot{Login: login, Rules: ruleSet, Imports: imports}, nil
}
