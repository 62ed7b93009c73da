package candidate

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/metrics"
)

// InstrumentedStore wraps a driver with per-operation latency metrics.
type InstrumentedStore struct {
	inner  store
	driver string
}

// NewInstrumentedStore wraps inner; driver labels the metrics.
func NewInstrumentedStore(inner store, driver string) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, driver: driver}
}

// Fetch delegates and records the duration.
func (s *InstrumentedStore) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	start := time.Now()
	rows, err := s.inner.Fetch(ctx, q)
	s.observe("fetch", start, err)
	return rows, err
}

// Get delegates and records the duration.
func (s *InstrumentedStore) Get(ctx context.Context, kind, id string) (*db.Record, error) {
	start := time.Now()
	rec, err := s.inner.Get(ctx, kind, id)
	s.observe("get", start, err)
	return rec, err
}

// Upsert delegates and records the duration.
func (s *InstrumentedStore) Upsert(ctx context.Context, rec *db.Record) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, rec)
	s.observe("upsert", start, err)
	return err
}

// Touch delegates and records the duration.
func (s *InstrumentedStore) Touch(ctx context.Context, kind, id string, at time.Time) error {
	start := time.Now()
	err := s.inner.Touch(ctx, kind, id, at)
	s.observe("touch", start, err)
	return err
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	metrics.StoreOperationDuration.
		WithLabelValues(s.driver, op, status(err)).
		Observe(time.Since(start).Seconds())
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, db.ErrKeyNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
