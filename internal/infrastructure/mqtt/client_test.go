package mqtt

import (
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-influx-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectBroker connects to a local Mosquitto broker. Skipped unless
// RUN_INTEGRATION is set.
func connectBroker(t *testing.T, clientID string) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against a local MQTT broker")
	}

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"CoreDeviceState", topics.CoreDeviceState("meter-1"), "graylogic/core/device/meter-1/state"},
		{"CoreEvent", topics.CoreEvent(EventDeviceDeleted), "graylogic/core/event/device_deleted"},
		{"ImportState", topics.ImportState("meter-1"), "graylogic/state/influx/meter-1"},
		{"ImportRequest", topics.ImportRequest("meter-1"), "graylogic/request/influx/meter-1"},
		{"Health", topics.Health(), "graylogic/health/influx"},
		{"AllCoreDeviceStates", topics.AllCoreDeviceStates(), "graylogic/core/device/+/state"},
		{"AllImportRequests", topics.AllImportRequests(), "graylogic/request/influx/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDeviceIDFromStateTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"graylogic/core/device/meter-1/state", "meter-1", true},
		{"graylogic/core/device//state", "", false},
		{"graylogic/core/device/a/b/state", "", false},
		{"graylogic/core/device/meter-1/command", "", false},
		{"graylogic/state/influx/meter-1", "", false},
	}
	for _, tt := range tests {
		id, ok := DeviceIDFromStateTopic(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("DeviceIDFromStateTopic(%q) = %q, %v; want %q, %v", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestDeviceIDFromRequestTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"graylogic/request/influx/meter-1", "meter-1", true},
		{"graylogic/request/influx/", "", false},
		{"graylogic/request/influx/a/b", "", false},
		{"graylogic/request/knx/meter-1", "", false},
	}
	for _, tt := range tests {
		id, ok := DeviceIDFromRequestTopic(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("DeviceIDFromRequestTopic(%q) = %q, %v; want %q, %v", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

// =============================================================================
// Options
// =============================================================================

func TestNewOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := newOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "graylogic-influx-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.ConnectRetry || !opts.CleanSession {
		t.Errorf("AutoReconnect = %v, ConnectRetry = %v, CleanSession = %v",
			opts.AutoReconnect, opts.ConnectRetry, opts.CleanSession)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS")
	}

	cfg.Broker.TLS = true
	opts = newOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("TLS scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
}

func TestNewOptions_Will(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "bridge-1"
	opts := newOptions(cfg)

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will enabled=%v retained=%v qos=%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "graylogic/health/influx" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["client_id"] != "bridge-1" || payload["reason"] != reasonCrash {
		t.Errorf("will payload = %v", payload)
	}
}

func TestPresence(t *testing.T) {
	tests := []struct {
		name       string
		p          presence
		wantStatus string
		wantReason string
	}{
		{"online", online("c1"), "online", ""},
		{"shutdown", offline("c1", reasonShutdown), "offline", reasonShutdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]string
			if err := json.Unmarshal(tt.p.encode(), &payload); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if payload["status"] != tt.wantStatus || payload["reason"] != tt.wantReason {
				t.Errorf("payload = %v", payload)
			}
			if _, err := time.Parse(time.RFC3339Nano, payload["timestamp"]); err != nil {
				t.Errorf("timestamp: %v", err)
			}
		})
	}
}

func TestAwait(t *testing.T) {
	done := &pahomqtt.DummyToken{}
	if err := await(done, time.Millisecond, ErrPublishFailed); err != nil {
		t.Errorf("await() on completed token error = %v", err)
	}
}

// =============================================================================
// Validation without a broker
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "a/b", nil, 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_EncodeError(t *testing.T) {
	client := &Client{}

	err := client.PublishJSON("a/b", map[string]any{"ch": make(chan int)}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}

	if err := client.PublishJSON("a/b", map[string]int{"v": 1}, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishJSON() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := client.Subscribe("a/b", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := client.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := client.Subscribe("a/b", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty topic error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Handler wrapping
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type mockLogger struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func TestDeliver(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)
	msg := fakeMessage{topic: "graylogic/core/device/x/state", payload: []byte("{}")}

	var got string
	client.deliver(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, msg)
	if got != "graylogic/core/device/x/state {}" {
		t.Errorf("handler received %q", got)
	}

	client.deliver(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	client.deliver(func(string, []byte) error { panic("boom") })(nil, msg)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warnings) != 1 || !strings.Contains(logger.warnings[0], "error") {
		t.Errorf("warnings = %v", logger.warnings)
	}
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v", logger.errors)
	}
}

// =============================================================================
// Broker tests
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against a local MQTT broker")
	}
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectBroker(t, "graylogic-influx-test-roundtrip")

	topic := Topics{}.ImportRequest("roundtrip")
	received := make(chan string, 1)
	err := client.Subscribe(Topics{}.AllImportRequests(), 1, func(topic string, _ []byte) error {
		id, _ := DeviceIDFromRequestTopic(topic)
		received <- id
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if got := client.Subscriptions(); !slices.Equal(got, []string{Topics{}.AllImportRequests()}) {
		t.Errorf("Subscriptions() = %v", got)
	}

	if err := client.PublishJSON(topic, map[string]string{"reason": "test"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case id := <-received:
		if id != "roundtrip" {
			t.Errorf("received id %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(Topics{}.AllImportRequests()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if got := client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v after unsubscribe", got)
	}
}

func TestCloseDisconnects(t *testing.T) {
	client := connectBroker(t, "graylogic-influx-test-close")

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after close error = %v", err)
	}
}
