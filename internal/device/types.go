package device

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// LegacyImportKey is the device config flag that marked import devices
// before tags were used.
const LegacyImportKey = "influx_import"

// maxNameLength bounds device names stored in the catalogue.
const maxNameLength = 200

// Device is a host device as known to the bridge.
//
// Descriptive fields (name, room, area) and the latest value arrive from Core
// state messages. Import devices additionally get values written by the
// import manager.
type Device struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Room   string         `json:"room,omitempty"`
	Area   string         `json:"area,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Tags   []string       `json:"tags,omitempty"`

	Value       *float64   `json:"value,omitempty"`
	ValueString string     `json:"value_string,omitempty"`
	Invalid     bool       `json:"invalid"`
	Unit        string     `json:"unit,omitempty"`
	LastChange  *time.Time `json:"last_change,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy that shares no mutable state with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Config = deepCopyMap(d.Config)
	cpy.Tags = slices.Clone(d.Tags)
	if d.Value != nil {
		v := *d.Value
		cpy.Value = &v
	}
	if d.LastChange != nil {
		t := *d.LastChange
		cpy.LastChange = &t
	}
	return &cpy
}

// HasTag reports whether the device carries tag (case-insensitive).
func (d *Device) HasTag(tag string) bool {
	return slices.Contains(d.Tags, normaliseTag(tag))
}

// LegacyImport reports whether the device config carries the legacy import flag.
func (d *Device) LegacyImport() bool {
	v, ok := d.Config[LegacyImportKey]
	if !ok {
		return false
	}
	switch flag := v.(type) {
	case bool:
		return flag
	case string:
		return strings.EqualFold(flag, "true") || flag == "1"
	case float64:
		return flag != 0
	default:
		return false
	}
}

// Validate checks the fields the catalogue depends on.
func (d *Device) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if strings.ContainsAny(d.ID, "/#+") {
		return fmt.Errorf("%w: id %q contains MQTT topic characters", ErrInvalidDevice, d.ID)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
