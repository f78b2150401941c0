package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/device"
	"github.com/nerrad567/gray-logic-influx/internal/export"
	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-influx/internal/status"
)

// Logger defines the logging interface used by the host.
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

// Bus is the MQTT surface the host uses. *mqtt.Client implements it.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
}

// Catalogue is the device store the host mirrors Core state into.
// *device.Registry implements it.
type Catalogue interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListByTag(tag string) []string
	ObserveState(ctx context.Context, u device.StateUpdate) (*device.Device, error)
	SetImportValue(ctx context.Context, id string, value *float64, unit string) (*device.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	MigrateLegacyImports(ctx context.Context, tag string) (int, error)
}

// Sink receives host events. The pipeline supervisor implements it and
// routes each call to the current generation.
type Sink interface {
	IsTracked(deviceID string, kind export.ValueKind) bool
	Record(ctx context.Context, rec export.Record)
	DeviceDeleted(ctx context.Context, deviceID string)
	PollNow(ctx context.Context, deviceID string) bool
}

// Options configures New.
type Options struct {
	Bus       Bus
	Devices   Catalogue
	ImportTag string
	QoS       byte
	Logger    Logger
}

// MQTTHost implements the host device API on top of MQTT and the device
// catalogue.
type MQTTHost struct {
	bus       Bus
	devices   Catalogue
	importTag string
	qos       byte
	logger    Logger
	now       func() time.Time

	mu     sync.Mutex
	topics []string
}

// New creates a host. Call Start to begin receiving Core messages.
func New(opts Options) (*MQTTHost, error) {
	if opts.Bus == nil || opts.Devices == nil {
		return nil, fmt.Errorf("%w: bus and device catalogue are required", ErrMissingDependency)
	}
	if opts.ImportTag == "" {
		return nil, fmt.Errorf("%w: import tag is required", ErrMissingDependency)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTHost{
		bus:       opts.Bus,
		devices:   opts.Devices,
		importTag: opts.ImportTag,
		qos:       opts.QoS,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start subscribes to Core device state, device deletions and poll
// requests. Messages are handled with ctx until Stop is called.
func (h *MQTTHost) Start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("%w: sink is required", ErrMissingDependency)
	}

	t := mqtt.Topics{}
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{t.AllCoreDeviceStates(), func(topic string, payload []byte) error {
			return h.handleState(ctx, sink, topic, payload)
		}},
		{t.CoreEvent(mqtt.EventDeviceDeleted), func(_ string, payload []byte) error {
			return h.handleDeleted(ctx, sink, payload)
		}},
		{t.AllImportRequests(), func(topic string, _ []byte) error {
			return h.handlePollRequest(ctx, sink, topic)
		}},
	}

	for _, s := range subs {
		if err := h.bus.Subscribe(s.topic, h.qos, s.handler); err != nil {
			h.Stop()
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
		h.mu.Lock()
		h.topics = append(h.topics, s.topic)
		h.mu.Unlock()
	}

	h.logger.Info("host subscriptions active", "topics", len(subs))
	return nil
}

// Stop removes the host's subscriptions.
func (h *MQTTHost) Stop() {
	h.mu.Lock()
	topics := h.topics
	h.topics = nil
	h.mu.Unlock()

	for _, topic := range topics {
		if err := h.bus.Unsubscribe(topic); err != nil {
			h.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// ListImportDevices returns the ids of devices carrying the import tag.
func (h *MQTTHost) ListImportDevices(_ context.Context) ([]string, error) {
	return h.devices.ListByTag(h.importTag), nil
}

// Device returns the catalogue entry for id.
func (h *MQTTHost) Device(ctx context.Context, id string) (*device.Device, error) {
	return h.devices.GetDevice(ctx, id)
}

// SetImportValue stores a polled value and publishes it to Core. A nil
// value marks the device invalid.
func (h *MQTTHost) SetImportValue(ctx context.Context, id string, value *float64, unit string) error {
	d, err := h.devices.SetImportValue(ctx, id, value, unit)
	if err != nil {
		return fmt.Errorf("storing import value: %w", err)
	}

	payload := importStatePayload{
		DeviceID:  id,
		Invalid:   d.Invalid,
		Unit:      d.Unit,
		Timestamp: h.now().UTC(),
	}
	if !d.Invalid {
		payload.Value = d.Value
	}
	if err := h.bus.PublishJSON(mqtt.Topics{}.ImportState(id), payload, true); err != nil {
		return fmt.Errorf("publishing import value: %w", err)
	}
	return nil
}

// MigrateLegacyImports converts devices marked with the legacy config flag
// to the import tag.
func (h *MQTTHost) MigrateLegacyImports(ctx context.Context) (int, error) {
	return h.devices.MigrateLegacyImports(ctx, h.importTag)
}

// PublishHealth publishes s as the bridge's retained health state.
func (h *MQTTHost) PublishHealth(s status.State) error {
	return h.bus.PublishJSON(mqtt.Topics{}.Health(), healthPayload{
		Status:           "online",
		Level:            s.Level,
		ErroredDevices:   s.ErroredDevices,
		ConnectivityLost: s.ConnectivityLost,
		Since:            s.Since,
		Timestamp:        h.now().UTC(),
	}, true)
}

// RunHealthPublisher publishes every health state received on updates until
// ctx is done. Failures are logged and the next update is still sent.
func (h *MQTTHost) RunHealthPublisher(ctx context.Context, updates <-chan status.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			if err := h.PublishHealth(s); err != nil {
				h.logger.Warn("publishing bridge health failed", "level", s.Level.String(), "error", err)
			}
		}
	}
}

func (h *MQTTHost) handleState(ctx context.Context, sink Sink, topic string, payload []byte) error {
	id, ok := mqtt.DeviceIDFromStateTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	p, value, err := decodeState(payload)
	if err != nil {
		return fmt.Errorf("device %s: %w", id, err)
	}

	d, err := h.devices.ObserveState(ctx, device.StateUpdate{
		DeviceID: id,
		Name:     p.Name,
		Room:     p.Room,
		Area:     p.Area,
		Value:    value,
		String:   p.String,
		Invalid:  p.Invalid,
		Unit:     p.Unit,
		Time:     p.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("updating device %s: %w", id, err)
	}

	if d.Invalid {
		h.logger.Debug("invalid device value not exported", "device_id", id)
		return nil
	}

	trackValue := value != nil && sink.IsTracked(id, export.KindValue)
	trackString := sink.IsTracked(id, export.KindString)
	if !trackValue && !trackString {
		return nil
	}

	rec := export.Record{
		DeviceID:  id,
		Value:     math.NaN(),
		String:    d.ValueString,
		Name:      d.Name,
		Location1: d.Area,
		Location2: d.Room,
		Time:      *d.LastChange,
	}
	if value != nil {
		rec.Value = *value
	}
	sink.Record(ctx, rec)
	return nil
}

func (h *MQTTHost) handleDeleted(ctx context.Context, sink Sink, payload []byte) error {
	var ev deletedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidPayload)
	}

	if err := h.devices.DeleteDevice(ctx, ev.DeviceID); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		h.logger.Warn("removing deleted device from catalogue failed", "device_id", ev.DeviceID, "error", err)
	}
	sink.DeviceDeleted(ctx, ev.DeviceID)
	return nil
}

func (h *MQTTHost) handlePollRequest(ctx context.Context, sink Sink, topic string) error {
	id, ok := mqtt.DeviceIDFromRequestTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	if !sink.PollNow(ctx, id) {
		h.logger.Info("poll requested for unknown import device", "device_id", id)
	}
	return nil
}
