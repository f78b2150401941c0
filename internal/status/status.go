package status

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines the logging interface used by the Calculator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Level is the tri-level health of the bridge.
type Level int

// Health levels, ordered by severity.
const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialise as names.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*l = LevelOK
	case "warning":
		*l = LevelWarning
	case "critical":
		*l = LevelCritical
	default:
		return fmt.Errorf("unknown health level %q", text)
	}
	return nil
}

// State is an immutable snapshot of the health state.
type State struct {
	Level            Level     `json:"level"`
	ErroredDevices   []string  `json:"errored_devices"`
	ConnectivityLost bool      `json:"connectivity_lost"`
	Since            time.Time `json:"since"`
}

// Calculator is the single source of truth for bridge health.
//
// Thread Safety: All methods are safe for concurrent use. Subscribers are
// invoked while the mutation lock is held, in transition order; they must not
// block and must not call mutating methods.
type Calculator struct {
	mu       sync.Mutex
	errored  map[string]struct{}
	connLost bool
	level    Level
	current  atomic.Pointer[State]

	subs    map[int]func(State)
	nextSub int

	logger  Logger
	metrics *Metrics
	now     func() time.Time
}

// New creates a Calculator in LevelOK.
func New() *Calculator {
	c := &Calculator{
		errored: make(map[string]struct{}),
		subs:    make(map[int]func(State)),
		logger:  noopLogger{},
		now:     time.Now,
	}
	c.current.Store(&State{Level: LevelOK, ErroredDevices: []string{}, Since: c.now().UTC()})
	return c
}

// SetLogger sets the logger for transition messages.
func (c *Calculator) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// SetMetrics attaches prometheus gauges that mirror the state.
func (c *Calculator) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	m.observe(*c.current.Load())
}

// State returns the current snapshot without taking the mutation lock.
func (c *Calculator) State() State {
	return *c.current.Load()
}

// Level returns the current level.
func (c *Calculator) Level() Level {
	return c.current.Load().Level
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (c *Calculator) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// ExportErrored records that writing a point for deviceID failed.
func (c *Calculator) ExportErrored(deviceID string) {
	c.markErrored(deviceID, "export")
}

// ExportWorked records that a point for deviceID was written.
func (c *Calculator) ExportWorked(deviceID string) {
	c.markWorked(deviceID)
}

// DeviceErrored records an import or device-write failure for deviceID.
func (c *Calculator) DeviceErrored(deviceID string) {
	c.markErrored(deviceID, "import")
}

// DeviceWorked clears an import or device-write failure for deviceID.
func (c *Calculator) DeviceWorked(deviceID string) {
	c.markWorked(deviceID)
}

// ConnectivityLost forces LevelCritical until ConnectivityRestored.
func (c *Calculator) ConnectivityLost() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connLost {
		return
	}
	c.connLost = true
	c.recompute(false)
}

// ConnectivityRestored clears the sticky critical state.
func (c *Calculator) ConnectivityRestored() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connLost {
		return
	}
	c.connLost = false
	c.recompute(false)
}

// ConfigurationChanged drops errors that belong to a superseded configuration.
// Connectivity is a property of the store, not of the configuration, and is
// left alone.
func (c *Calculator) ConfigurationChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errored) == 0 {
		return
	}
	c.errored = make(map[string]struct{})
	c.recompute(true)
}

func (c *Calculator) markErrored(deviceID, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.errored[deviceID]; ok {
		return
	}
	c.errored[deviceID] = struct{}{}
	c.logger.Warn("device error recorded", "device_id", deviceID, "source", source)
	c.recompute(true)
}

func (c *Calculator) markWorked(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.errored[deviceID]; !ok {
		return
	}
	delete(c.errored, deviceID)
	c.recompute(true)
}

// recompute derives the level and publishes a new snapshot.
// Caller must hold c.mu. setChanged reports whether the errored set changed.
func (c *Calculator) recompute(setChanged bool) {
	next := LevelOK
	switch {
	case c.connLost:
		next = LevelCritical
	case len(c.errored) > 0:
		next = LevelWarning
	}

	prev := c.level
	if next == prev && !setChanged {
		return
	}

	snap := State{
		Level:            next,
		ErroredDevices:   c.erroredIDs(),
		ConnectivityLost: c.connLost,
		Since:            c.current.Load().Since,
	}

	if next != prev {
		snap.Since = c.now().UTC()
		c.level = next
		c.logTransition(prev, next, snap.ErroredDevices)
	}

	c.current.Store(&snap)
	if c.metrics != nil {
		c.metrics.observe(snap)
	}
	for _, fn := range c.subs {
		fn(snap)
	}
}

func (c *Calculator) logTransition(prev, next Level, errored []string) {
	switch {
	case next == LevelCritical:
		c.logger.Error("time-series store unreachable, health critical")
	case prev == LevelCritical:
		c.logger.Info("time-series store back to working", "level", next.String(), "errored_devices", errored)
	case next == LevelWarning:
		c.logger.Warn("health degraded", "errored_devices", errored)
	default:
		c.logger.Info("all devices working again")
	}
}

func (c *Calculator) erroredIDs() []string {
	ids := make([]string, 0, len(c.errored))
	for id := range c.errored {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Metrics mirrors the health state into prometheus gauges.
type Metrics struct {
	level   prometheus.Gauge
	errored prometheus.Gauge
}

// NewMetrics creates and registers the health gauges.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graylogic_influx_health_level",
			Help: "Bridge health: 0 ok, 1 warning, 2 critical.",
		}),
		errored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graylogic_influx_errored_devices",
			Help: "Number of devices with a failing export or import.",
		}),
	}
	reg.MustRegister(m.level, m.errored)
	return m
}

func (m *Metrics) observe(s State) {
	m.level.Set(float64(s.Level))
	m.errored.Set(float64(len(s.ErroredDevices)))
}
