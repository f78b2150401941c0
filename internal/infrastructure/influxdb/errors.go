package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrWriteFailed) {
//	    // Handle rejected or undelivered point
//	}
var (
	// ErrInvalidLogin indicates the login information cannot be used to
	// build a client.
	ErrInvalidLogin = errors.New("influxdb: invalid login information")

	// ErrWriteFailed indicates a point was not written.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrQueryFailed indicates a query could not be run or parsed.
	ErrQueryFailed = errors.New("influxdb: query failed")

	// ErrUnhealthy indicates the server answered the health probe with a
	// non-passing status.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("influxdb: client closed")
)
