package tsdb

import (
	"testing"
	"time"
)

func BenchmarkFormatLineProtocol_ExportedValue(b *testing.B) {
	tags := map[string]string{"device_id": "thermostat-hall", "location1": "ground-floor", "location2": "hall"}
	fields := map[string]any{"value": 21.5}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for range b.N {
		formatLineProtocol("temperature", tags, fields, ts)
	}
}

// Values with a string field carry both value and value_str.
func BenchmarkFormatLineProtocol_StringField(b *testing.B) {
	tags := map[string]string{"device_id": "hvac-mode", "location1": "first floor"}
	fields := map[string]any{"value": 1.0, "value_str": "heating \"eco\""}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for range b.N {
		formatLineProtocol("hvac", tags, fields, ts)
	}
}

func BenchmarkEscapeTag(b *testing.B) {
	for range b.N {
		escapeTag("living room,east=1")
	}
}
