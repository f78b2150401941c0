package series

import (
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Point is a single time-stamped write to a time-series store.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// NewPoint creates a point with copied tag and field maps.
// The timestamp is converted to UTC and truncated to whole seconds.
func NewPoint(measurement string, tags map[string]string, fields map[string]any, t time.Time) Point {
	return Point{
		Measurement: measurement,
		Tags:        maps.Clone(tags),
		Fields:      maps.Clone(fields),
		Time:        t.UTC().Truncate(time.Second),
	}
}

// Validate reports ErrEmptyPoint when the point cannot be written.
func (p Point) Validate() error {
	if p.Measurement == "" || len(p.Fields) == 0 {
		return ErrEmptyPoint
	}
	return nil
}

// String returns a compact description used in log lines.
func (p Point) String() string {
	return fmt.Sprintf("%s%v%v@%d", p.Measurement, p.Tags, p.Fields, p.Time.Unix())
}

// ToFloat converts a scalar query result to float64.
//
// Numeric types convert directly, strings are parsed, booleans map to 0/1.
// Anything else returns ErrNotNumeric.
func ToFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, val)
		}
		return f, nil
	case nil:
		return 0, ErrNoData
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}
