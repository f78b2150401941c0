package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// Default collector settings.
const (
	DefaultQueueCapacity = 10000
	DefaultRetryCooldown = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Logger defines the logging interface used by the Collector.
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

// Store is the part of series.Store the collector needs. The collector owns
// the store and closes it.
type Store interface {
	series.Writer
	series.Pinger
	Close() error
}

// StatusReporter receives delivery outcomes.
type StatusReporter interface {
	ExportErrored(deviceID string)
	ExportWorked(deviceID string)
	ConnectivityLost()
	ConnectivityRestored()
}

// CollectorOptions configures NewCollector.
type CollectorOptions struct {
	Store  Store
	Rules  *RuleSet
	Status StatusReporter

	// QueueCapacity bounds the queue. Default DefaultQueueCapacity.
	QueueCapacity int
	// RetryCooldown is the pause after a connectivity failure. Default DefaultRetryCooldown.
	RetryCooldown time.Duration
	// ProbeTimeout bounds the reachability probe after a failed write.
	ProbeTimeout time.Duration
	// Paused holds the drain loop until Resume is called. Recorded points
	// wait in the queue meanwhile.
	Paused bool

	Logger  Logger
	Metrics *Metrics
}

// Collector queues points built from device changes and writes them to the
// store from a single drain goroutine.
type Collector struct {
	store    Store
	rules    *RuleSet
	status   StatusReporter
	queue    *Queue
	cooldown time.Duration
	probe    time.Duration
	logger   Logger
	metrics  *Metrics

	tracked [2]map[string]struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	resume     chan struct{}
	resumeOnce sync.Once
	closeOnce  sync.Once
	closeErr   error

	// connLost is only touched by the drain goroutine.
	connLost bool
}

// NewCollector builds the device index for opts.Rules and starts the drain loop.
func NewCollector(opts CollectorOptions) (*Collector, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	}
	if opts.Rules == nil {
		return nil, fmt.Errorf("%w: rules", ErrMissingDependency)
	}
	if opts.Status == nil {
		return nil, fmt.Errorf("%w: status", ErrMissingDependency)
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.RetryCooldown <= 0 {
		opts.RetryCooldown = DefaultRetryCooldown
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		store:    opts.Store,
		rules:    opts.Rules,
		status:   opts.Status,
		queue:    NewQueue(opts.QueueCapacity),
		cooldown: opts.RetryCooldown,
		probe:    opts.ProbeTimeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracked:  [2]map[string]struct{}{make(map[string]struct{}), make(map[string]struct{})},
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		resume:   make(chan struct{}),
	}

	for _, r := range c.rules.rules {
		if r.Field != "" {
			c.tracked[KindValue][r.DeviceID] = struct{}{}
		}
		if r.StringField != "" {
			c.tracked[KindString][r.DeviceID] = struct{}{}
		}
	}

	go c.run()
	if !opts.Paused {
		c.Resume()
	}

	c.logger.Info("collector started",
		"rules", c.rules.Len(),
		"rules_version", c.rules.Version(),
		"queue_capacity", opts.QueueCapacity,
		"paused", opts.Paused,
	)
	return c, nil
}

// Resume starts delivery for a collector created with Paused and publishes
// its queue length. Calling it again has no effect.
func (c *Collector) Resume() {
	c.resumeOnce.Do(func() {
		close(c.resume)
		c.metrics.setQueueLen(c.queue.Len())
	})
}

// IsTracked reports whether any rule persists the given kind of value for deviceID.
func (c *Collector) IsTracked(deviceID string, kind ValueKind) bool {
	if kind != KindValue && kind != KindString {
		return false
	}
	_, ok := c.tracked[kind][deviceID]
	return ok
}

// Rules returns the rule set this collector was built for.
func (c *Collector) Rules() *RuleSet { return c.rules }

// Record builds points for rec and enqueues them. It blocks while the queue is
// full. accepted is true when at least one point was enqueued.
func (c *Collector) Record(ctx context.Context, rec Record) (bool, error) {
	if c.ctx.Err() != nil {
		return false, ErrClosed
	}

	idx := c.rules.byDevice[rec.DeviceID]
	if len(idx) == 0 {
		return false, nil
	}

	points := make([]QueuedPoint, 0, len(idx))
	for _, i := range idx {
		r := c.rules.rules[i]
		qp, ok := buildPoint(r, rec)
		if !ok {
			c.logger.Info("no fields to export, point skipped",
				"device_id", rec.DeviceID,
				"rule_id", r.ID,
				"measurement", r.Measurement,
				"value", rec.Value,
			)
			continue
		}
		points = append(points, qp)
	}
	if len(points) == 0 {
		return false, nil
	}

	putCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	accepted := false
	for _, qp := range points {
		if err := c.queue.Put(putCtx, qp); err != nil {
			if c.ctx.Err() != nil {
				return accepted, ErrClosed
			}
			return accepted, err
		}
		accepted = true
		c.metrics.pointEnqueued(c.queue.Len())
		c.logger.Debug("point queued", "device_id", rec.DeviceID, "measurement", qp.Point.Measurement)
	}
	return accepted, nil
}

// Pending returns the number of points waiting for delivery.
func (c *Collector) Pending() int {
	return c.queue.Len()
}

// Close stops the drain loop, discards undelivered points and closes the
// store. The shared queue gauge is left to the next generation. It is safe to
// call more than once.
func (c *Collector) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		if n := c.queue.Len(); n > 0 {
			c.logger.Warn("discarding undelivered points", "count", n)
			c.metrics.pointsDropped(DropShutdown, n)
		}
		if err := c.store.Close(); err != nil {
			c.closeErr = fmt.Errorf("closing store: %w", err)
		}
		c.logger.Info("collector stopped")
	})
	return c.closeErr
}

func (c *Collector) run() {
	defer close(c.done)

	select {
	case <-c.ctx.Done():
		return
	case <-c.resume:
	}

	for {
		qp, err := c.queue.Take(c.ctx)
		if err != nil {
			return
		}
		if !c.deliver(qp) {
			return
		}
	}
}

// deliver writes one point. It returns false when the collector is shutting down.
func (c *Collector) deliver(qp QueuedPoint) bool {
	start := time.Now()
	err := c.store.WritePoint(c.ctx, qp.Point)
	if err == nil {
		c.metrics.pointWritten(time.Since(start), c.queue.Len())
		if c.connLost {
			c.connLost = false
			c.logger.Info("time-series store reachable again")
		}
		// A successful write proves connectivity, including for a critical
		// state reported by an earlier generation.
		c.status.ConnectivityRestored()
		c.status.ExportWorked(qp.DeviceID)
		return true
	}

	if c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}

	c.status.ExportErrored(qp.DeviceID)

	probeCtx, cancel := context.WithTimeout(c.ctx, c.probe)
	_, probeErr := c.store.Version(probeCtx)
	cancel()
	if c.ctx.Err() != nil {
		return false
	}

	if probeErr == nil {
		c.logger.Error("store rejected point, dropping",
			"device_id", qp.DeviceID,
			"point", qp.Point.String(),
			"error", err,
		)
		c.metrics.pointsDropped(DropRejected, 1)
		c.metrics.setQueueLen(c.queue.Len())
		return true
	}

	if !c.connLost {
		c.connLost = true
		c.status.ConnectivityLost()
	}
	c.queue.PushFront(qp)
	c.metrics.pointRequeued(c.queue.Len())
	c.logger.Error("time-series store unreachable, point requeued",
		"device_id", qp.DeviceID,
		"error", err,
		"probe_error", probeErr,
		"retry_in", c.cooldown,
	)

	timer := time.NewTimer(c.cooldown)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
