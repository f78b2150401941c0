package series

import "errors"

// Sentinel errors for time-series store operations.
var (
	// ErrNoData indicates a query returned no rows or no value column.
	ErrNoData = errors.New("series: query returned no data")

	// ErrNotNumeric indicates a query returned a value that cannot be
	// converted to a float64.
	ErrNotNumeric = errors.New("series: value is not numeric")

	// ErrEmptyPoint indicates a point without a measurement or without fields.
	ErrEmptyPoint = errors.New("series: point has no measurement or fields")
)
