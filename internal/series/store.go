package series

import "context"

// Writer writes one point synchronously.
type Writer interface {
	WritePoint(ctx context.Context, p Point) error
}

// Querier runs a query that is expected to yield a single scalar.
type Querier interface {
	QueryValue(ctx context.Context, query string) (float64, error)
}

// Pinger is a lightweight reachability probe. A nil error means the store
// answered; the returned string is the server version when known.
type Pinger interface {
	Version(ctx context.Context) (string, error)
}

// Store is the full client contract. The component that opens a Store owns it
// and is the only one allowed to Close it.
type Store interface {
	Writer
	Querier
	Pinger
	Close() error
}
