package export

import (
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/series"
)

// Tag keys added to every exported point.
const (
	TagDeviceID   = "device_id"
	TagDeviceName = "device_name"
	TagLocation1  = "location1"
	TagLocation2  = "location2"
)

// ValueKind selects which part of a device change a caller is asking about.
type ValueKind int

const (
	// KindValue is the device's numeric value.
	KindValue ValueKind = iota
	// KindString is the device's string value.
	KindString
)

// Record is one device value change as delivered by the host.
type Record struct {
	DeviceID  string
	Value     float64
	String    string
	Name      string
	Location1 string
	Location2 string
	Time      time.Time
}

// QueuedPoint is a point waiting for delivery, tagged with the device it came
// from so delivery outcomes can be attributed.
type QueuedPoint struct {
	Point    series.Point
	DeviceID string
}

// buildPoint applies one rule to a record. ok is false when the rule yields
// no fields for this record.
func buildPoint(r Rule, rec Record) (QueuedPoint, bool) {
	fields := make(map[string]any, 2)
	if r.Field != "" && r.InRange(rec.Value) {
		fields[r.Field] = rec.Value
	}
	if r.StringField != "" {
		fields[r.StringField] = rec.String
	}
	if len(fields) == 0 {
		return QueuedPoint{}, false
	}

	tags := make(map[string]string, len(r.Tags)+4)
	for k, v := range r.Tags {
		tags[k] = v
	}
	tags[TagDeviceID] = rec.DeviceID
	tags[TagDeviceName] = rec.Name
	if rec.Location1 != "" {
		tags[TagLocation1] = rec.Location1
	}
	if rec.Location2 != "" {
		tags[TagLocation2] = rec.Location2
	}

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return QueuedPoint{
		Point:    series.Point{Measurement: r.Measurement, Tags: tags, Fields: fields, Time: ts.UTC().Truncate(time.Second)},
		DeviceID: rec.DeviceID,
	}, true
}
