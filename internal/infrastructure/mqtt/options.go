package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	maxQoS            = 2
	maxPayloadSize    = 1 << 20
	tlsMinVersion     = tls.VersionTLS12
)

// Presence reasons carried on the health topic when the bridge goes away.
const (
	reasonShutdown = "graceful_shutdown"
	reasonCrash    = "unexpected_disconnect"
)

// presence is the retained online/offline marker on the health topic. The
// health publisher later overwrites it with the full health state, which
// keeps the same status field.
type presence struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p presence) encode() []byte {
	b, _ := json.Marshal(p) //nolint:errcheck // plain struct, cannot fail
	return b
}

func online(clientID string) presence {
	return presence{Status: "online", ClientID: clientID, Timestamp: time.Now().UTC()}
}

func offline(clientID, reason string) presence {
	return presence{Status: "offline", ClientID: clientID, Reason: reason, Timestamp: time.Now().UTC()}
}

// newOptions maps the bridge's MQTT config onto paho options. The will
// marks the bridge offline on the health topic if the connection drops
// without a clean Close.
func newOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetBinaryWill(Topics{}.Health(), offline(cfg.Broker.ClientID, reasonCrash).encode(), 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}
