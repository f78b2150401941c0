package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/series"
	"github.com/nerrad567/gray-logic-influx/internal/status"
)

// statePayload is the body of graylogic/core/device/{id}/state.
//
// Value may be a JSON number, a boolean, a numeric string or null. A
// non-numeric string is treated as the device's string value.
type statePayload struct {
	Value     any       `json:"value"`
	String    string    `json:"string,omitempty"`
	Name      string    `json:"name,omitempty"`
	Room      string    `json:"room,omitempty"`
	Area      string    `json:"area,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Invalid   bool      `json:"invalid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func decodeState(payload []byte) (statePayload, *float64, error) {
	var p statePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	f, err := series.ToFloat(p.Value)
	switch {
	case err == nil:
		return p, &f, nil
	case errors.Is(err, series.ErrNoData):
		return p, nil, nil
	default:
		if s, ok := p.Value.(string); ok {
			if p.String == "" {
				p.String = s
			}
			return p, nil, nil
		}
		return p, nil, fmt.Errorf("%w: value: %w", ErrInvalidPayload, err)
	}
}

// deletedEvent is the body of graylogic/core/event/device_deleted.
type deletedEvent struct {
	DeviceID string `json:"device_id"`
}

// importStatePayload is published retained on graylogic/state/influx/{id}.
type importStatePayload struct {
	DeviceID  string    `json:"device_id"`
	Value     *float64  `json:"value"`
	Invalid   bool      `json:"invalid"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// healthPayload is published retained on graylogic/health/influx.
type healthPayload struct {
	Status           string       `json:"status"`
	Level            status.Level `json:"level"`
	ErroredDevices   []string     `json:"errored_devices"`
	ConnectivityLost bool         `json:"connectivity_lost"`
	Since            time.Time    `json:"since"`
	Timestamp        time.Time    `json:"timestamp"`
}
