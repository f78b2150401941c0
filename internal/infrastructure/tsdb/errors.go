package tsdb

import "errors"

// Sentinel errors for VictoriaMetrics operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, tsdb.ErrWriteFailed) {
//	    // Handle undelivered point
//	}
var (
	// ErrInvalidLogin indicates the login information cannot be used to
	// build a client.
	ErrInvalidLogin = errors.New("tsdb: invalid login information")

	// ErrWriteFailed indicates a write operation failed.
	ErrWriteFailed = errors.New("tsdb: write failed")

	// ErrQueryFailed indicates a query failed or its response could not be parsed.
	ErrQueryFailed = errors.New("tsdb: query failed")

	// ErrUnhealthy indicates /health did not answer 200.
	ErrUnhealthy = errors.New("tsdb: server not healthy")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("tsdb: client closed")
)
