package candidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
)

// store is the consumer interface for candidate rows (ISP).
type store interface {
	Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error)
	Get(ctx context.Context, kind, id string) (*db.Record, error)
	Upsert(ctx context.Context, rec *db.Record) error
	Touch(ctx context.Context, kind, id string, at time.Time) error
}

// Repo implements usecase/discovery.Repository and usecase/candidate.Repository.
// Every store call runs through one circuit breaker.
type Repo struct {
	store   store
	breaker *gobreaker.CircuitBreaker[any]
}

// New creates a candidate repository.
func New(s store, cfg BreakerConfig, logger *zap.Logger) *Repo {
	return &Repo{store: s, breaker: newBreaker(cfg, logger)}
}

// Fetch runs one bounded read and restores domain candidates.
func (r *Repo) Fetch(ctx context.Context, q *db.FetchQuery) ([]domcand.Candidate, error) {
	res, err := r.breaker.Execute(func() (any, error) {
		return r.store.Fetch(ctx, q)
	})
	if err != nil {
		return nil, mapErr(ctx, fmt.Sprintf("fetch %s", q.Kind), err)
	}
	rows, _ := res.([]db.Record)
	out := make([]domcand.Candidate, 0, len(rows))
	for i := range rows {
		if rows[i].Kind == "" {
			rows[i].Kind = q.Kind
		}
		out = append(out, fromRecord(&rows[i]))
	}
	return out, nil
}

// Get returns one candidate or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, kind, id string) (domcand.Candidate, error) {
	res, err := r.breaker.Execute(func() (any, error) {
		return r.store.Get(ctx, kind, id)
	})
	if err != nil {
		return domcand.Candidate{}, mapErr(ctx, fmt.Sprintf("get %s/%s", kind, id), err)
	}
	return fromRecord(res.(*db.Record)), nil
}

// Upsert writes the full candidate.
func (r *Repo) Upsert(ctx context.Context, c *domcand.Candidate) error {
	rec := toRecord(c)
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.store.Upsert(ctx, &rec)
	})
	if err != nil {
		return mapErr(ctx, fmt.Sprintf("upsert %s/%s", rec.Kind, rec.ID), err)
	}
	return nil
}

// Touch moves last activity forward.
func (r *Repo) Touch(ctx context.Context, kind, id string, at time.Time) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.store.Touch(ctx, kind, id, at)
	})
	if err != nil {
		return mapErr(ctx, fmt.Sprintf("touch %s/%s", kind, id), err)
	}
	return nil
}

// mapErr translates driver and breaker errors into domain sentinels.
// Context errors win over whatever the driver reported.
func mapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrCanceled, ctxErr)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrCanceled, err)
	case errors.Is(err, db.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, db.ErrInvalidQuery):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrBackingStoreUnavailable, err)
	}
}

// HealthCheck reports ErrBackingStoreUnavailable while the breaker is open.
func (r *Repo) HealthCheck(_ context.Context) error {
	if r.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("breaker %s open: %w", r.breaker.Name(), domain.ErrBackingStoreUnavailable)
	}
	return nil
}
