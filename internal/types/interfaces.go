package types

import "context"

// Pinger is implemented by backing stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
