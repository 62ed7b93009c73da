package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockStoreChecker struct {
	err error
}

func (m *mockStoreChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		dbErr       error
		storeErr    error
		wantStatus  Status
		wantDB      CheckResult
		wantBreaker CheckResult
	}{
		{"all healthy", nil, nil, Healthy, CheckOK, CheckOK},
		{"database down", errors.New("conn refused"), nil, Unhealthy, CheckError, CheckOK},
		{"breaker open", nil, errors.New("open"), Degraded, CheckOK, CheckError},
		{"both failing", errors.New("conn refused"), errors.New("open"), Unhealthy, CheckError, CheckError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&mockDBPinger{err: tt.dbErr}, &mockStoreChecker{err: tt.storeErr})
			r := svc.Check(context.Background())

			if r.Status != tt.wantStatus {
				t.Errorf("expected %q, got %q", tt.wantStatus, r.Status)
			}
			if r.Checks["database"] != tt.wantDB {
				t.Errorf("expected database %q, got %q", tt.wantDB, r.Checks["database"])
			}
			if r.Checks["store_breaker"] != tt.wantBreaker {
				t.Errorf("expected store_breaker %q, got %q", tt.wantBreaker, r.Checks["store_breaker"])
			}
		})
	}
}

func TestCheck_NilStoreChecker(t *testing.T) {
	svc := New(&mockDBPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["store_breaker"]; ok {
		t.Error("store_breaker check should be absent when checker is nil")
	}
}
