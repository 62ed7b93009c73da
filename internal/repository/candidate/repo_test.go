package candidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/metrics"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	fetchFn  func(ctx context.Context, q *db.FetchQuery) ([]db.Record, error)
	getFn    func(ctx context.Context, kind, id string) (*db.Record, error)
	upsertFn func(ctx context.Context, rec *db.Record) error
	touchFn  func(ctx context.Context, kind, id string, at time.Time) error
}

func (m *mockStore) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockStore) Get(ctx context.Context, kind, id string) (*db.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, kind, id)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Upsert(ctx context.Context, rec *db.Record) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, rec)
	}
	return nil
}

func (m *mockStore) Touch(ctx context.Context, kind, id string, at time.Time) error {
	if m.touchFn != nil {
		return m.touchFn(ctx, kind, id, at)
	}
	return nil
}


func newTestRepo(t *testing.T, cfg BreakerConfig) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, cfg, zap.NewNop()), ms
}

func f64(v float64) *float64 { return &v }

func TestFetch_RestoresCandidates(t *testing.T) {
	repo, ms := newTestRepo(t, DefaultBreakerConfig())
	birth := time.Date(2000, 3, 11, 0, 0, 0, 0, time.UTC).UnixMilli()
	ms.fetchFn = func(_ context.Context, q *db.FetchQuery) ([]db.Record, error) {
		if q.Kind != "profile" || q.Limit != 5 {
			t.Errorf("query = %+v", q)
		}
		return []db.Record{
			{ID: "a", OwnerID: "u1", Lat: f64(10), Lon: f64(20), LastActivityMs: 1000, BirthDateMs: &birth},
			{ID: "b", OwnerID: "u2", Lat: f64(95), Lon: f64(20)},
		}, nil
	}

	got, err := repo.Fetch(context.Background(), &db.FetchQuery{Kind: "profile", Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Kind() != "profile" {
		t.Errorf("kind should default to the query kind, got %q", got[0].Kind())
	}
	if got[0].Position() == nil || got[0].Position().Lat != 10 {
		t.Errorf("position = %v", got[0].Position())
	}
	if got[0].BirthDate() == nil || got[0].BirthDate().Year() != 2000 {
		t.Errorf("birth date = %v", got[0].BirthDate())
	}
	if got[0].LastActivityAt().UnixMilli() != 1000 {
		t.Errorf("last activity = %v", got[0].LastActivityAt())
	}
	if got[1].Position() != nil {
		t.Error("out-of-range stored position must be absent")
	}
	if !got[1].LastActivityAt().IsZero() {
		t.Error("zero last activity must stay the zero time")
	}
}

func TestMapErr(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want error
	}{
		{"not found", context.Background(), db.ErrKeyNotFound, domain.ErrNotFound},
		{"invalid", context.Background(), db.ErrInvalidQuery, domain.ErrInvalidInput},
		{"driver", context.Background(), &db.Error{Op: db.OpAggregate, Err: errors.New("conn reset")}, domain.ErrBackingStoreUnavailable},
		{"breaker open", context.Background(), errors.New("circuit breaker is open"), domain.ErrBackingStoreUnavailable},
		{"caller canceled", canceled, errors.New("whatever the driver said"), domain.ErrCanceled},
		{"canceled in driver", context.Background(), context.Canceled, domain.ErrCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErr(tt.ctx, "op", tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapErr = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	repo, ms := newTestRepo(t, DefaultBreakerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	ms.fetchFn = func(ctx context.Context, _ *db.FetchQuery) ([]db.Record, error) {
		cancel()
		return nil, ctx.Err()
	}

	_, err := repo.Fetch(ctx, &db.FetchQuery{Kind: "profile", Limit: 1})
	if !errors.Is(err, domain.ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCanceled wrapping context.Canceled, got %v", err)
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-open"
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	repo, ms := newTestRepo(t, cfg)

	calls := 0
	ms.fetchFn = func(context.Context, *db.FetchQuery) ([]db.Record, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	q := &db.FetchQuery{Kind: "profile", Limit: 1}
	for range 2 {
		if _, err := repo.Fetch(context.Background(), q); !errors.Is(err, domain.ErrBackingStoreUnavailable) {
			t.Fatalf("expected ErrBackingStoreUnavailable, got %v", err)
		}
	}
	_, err := repo.Fetch(context.Background(), q)
	if !errors.Is(err, domain.ErrBackingStoreUnavailable) {
		t.Fatalf("expected ErrBackingStoreUnavailable from open breaker, got %v", err)
	}
	if calls != 2 {
		t.Errorf("open breaker must short-circuit, store called %d times", calls)
	}
	if v := testutil.ToFloat64(metrics.BreakerState.WithLabelValues("test-open")); v != 2 {
		t.Errorf("breaker state gauge = %v, want 2 (open)", v)
	}
	if err := repo.HealthCheck(context.Background()); !errors.Is(err, domain.ErrBackingStoreUnavailable) {
		t.Errorf("health check with open breaker = %v", err)
	}
}

func TestBreaker_IgnoresNotFound(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-notfound"
	cfg.FailureThreshold = 1
	repo, _ := newTestRepo(t, cfg)

	for range 3 {
		if _, err := repo.Get(context.Background(), "profile", "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if err := repo.HealthCheck(context.Background()); err != nil {
		t.Errorf("not-found must not open the breaker: %v", err)
	}
}

func TestUpsert_FlattensCandidate(t *testing.T) {
	repo, ms := newTestRepo(t, DefaultBreakerConfig())
	var got db.Record
	ms.upsertFn = func(_ context.Context, rec *db.Record) error {
		got = *rec
		return nil
	}

	birth := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)
	c, err := domcand.New(domcand.Fields{
		ID: "a", OwnerID: "u1", Kind: "profile",
		Lat: f64(1), Lon: f64(2),
		LastActivityAt: time.UnixMilli(5000),
		BirthDate:      &birth,
		Tags:           map[string]string{"gender": "female"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(context.Background(), &c); err != nil {
		t.Fatal(err)
	}
	if got.LastActivityMs != 5000 || got.CreatedMs != 0 {
		t.Errorf("timestamps = %d/%d", got.LastActivityMs, got.CreatedMs)
	}
	if got.BirthDateMs == nil || *got.BirthDateMs != birth.UnixMilli() {
		t.Errorf("birth date = %v", got.BirthDateMs)
	}
	if *got.Lat != 1 || *got.Lon != 2 || got.Tags["gender"] != "female" {
		t.Errorf("record = %+v", got)
	}
}

func TestTouch_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t, DefaultBreakerConfig())
	ms.touchFn = func(context.Context, string, string, time.Time) error { return db.ErrKeyNotFound }

	if err := repo.Touch(context.Background(), "live", "x", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInstrumentedStore_RecordsStatus(t *testing.T) {
	inner := &mockStore{}
	s := NewInstrumentedStore(inner, "memory")

	_, _ = s.Get(context.Background(), "profile", "nope")
	_, _ = s.Fetch(context.Background(), &db.FetchQuery{Kind: "profile", Limit: 1})

	if n := testutil.CollectAndCount(metrics.StoreOperationDuration); n < 2 {
		t.Errorf("expected at least 2 series, got %d", n)
	}
	if status(db.ErrKeyNotFound) != "not_found" || status(nil) != "ok" || status(context.DeadlineExceeded) != "canceled" {
		t.Error("unexpected status labels")
	}
}
