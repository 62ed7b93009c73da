package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	CandidateReader
	CandidateWriter
	SchemaManager
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CandidateReader runs bounded predicate fetches.
type CandidateReader interface {
	// Fetch returns at most q.Limit rows matching q.Filters, in q.Order.
	Fetch(ctx context.Context, q *FetchQuery) ([]Record, error)
	// Get returns one row or ErrKeyNotFound.
	Get(ctx context.Context, kind, id string) (*Record, error)
}

// CandidateWriter persists candidates.
type CandidateWriter interface {
	// Upsert writes the full row. LastActivityMs never moves backwards.
	Upsert(ctx context.Context, rec *Record) error
	// Touch sets last_activity to max(current, at). Returns ErrKeyNotFound for unknown ids.
	Touch(ctx context.Context, kind, id string, at time.Time) error
}

// SchemaManager prepares indexes or tables for a kind.
type SchemaManager interface {
	EnsureSchema(ctx context.Context, s *Schema) error
}
