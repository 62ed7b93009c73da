package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports whether reads are currently short-circuited.
type StoreChecker interface {
	HealthCheck(ctx context.Context) error
}
