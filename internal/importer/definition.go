package importer

import (
	"fmt"
	"strings"
	"time"
)

// Definition describes how one import device is fed from the store.
type Definition struct {
	DeviceID string
	Query    string
	Interval time.Duration
	Unit     string
}

// Validate checks the definition at the configuration boundary.
// A zero interval is allowed and means "use the maximum interval".
func (d Definition) Validate() error {
	if strings.TrimSpace(d.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(d.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidDefinition)
	}
	if d.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidDefinition)
	}
	return nil
}

// effectiveInterval clamps the poll interval to (0, maxInterval].
func effectiveInterval(interval, maxInterval time.Duration) time.Duration {
	if interval <= 0 || interval > maxInterval {
		return maxInterval
	}
	return interval
}
