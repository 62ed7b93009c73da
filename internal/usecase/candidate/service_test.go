package candidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/scout/internal/domain"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

var admin = query.Requester{ID: "admin", Role: query.RoleElevated}

// mockRepo implements Repository for tests.
type mockRepo struct {
	stored  map[string]domcand.Candidate
	touched []time.Time
	err     error
}

func newMockRepo() *mockRepo { return &mockRepo{stored: map[string]domcand.Candidate{}} }

func (m *mockRepo) Get(_ context.Context, _ string, id string) (domcand.Candidate, error) {
	c, ok := m.stored[id]
	if !ok {
		return domcand.Candidate{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *mockRepo) Upsert(_ context.Context, c *domcand.Candidate) error {
	if m.err != nil {
		return m.err
	}
	m.stored[c.ID()] = *c
	return nil
}

func (m *mockRepo) Touch(_ context.Context, _, _ string, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.touched = append(m.touched, at)
	return nil
}

func newService(t *testing.T, repo Repository) *Service {
	t.Helper()
	reg, err := kind.NewRegistry(kind.Profile(), kind.Live())
	if err != nil {
		t.Fatal(err)
	}
	svc := New(repo, reg)
	svc.now = func() time.Time { return testNow }
	return svc
}

func f64(v float64) *float64 { return &v }

func TestUpsert_GeneratesIDAndTimestamps(t *testing.T) {
	repo := newMockRepo()
	svc := newService(t, repo)

	c, err := svc.Upsert(context.Background(), admin, domcand.Fields{OwnerID: "u1", Kind: "profile"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() == "" {
		t.Fatal("expected generated id")
	}
	if _, ok := repo.stored[c.ID()]; !ok {
		t.Error("candidate not stored")
	}
	if !c.LastActivityAt().Equal(testNow) || !c.CreatedAt().Equal(testNow) {
		t.Errorf("timestamps = %v / %v", c.LastActivityAt(), c.CreatedAt())
	}
}

func TestUpsert_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     query.Requester
		fields  domcand.Fields
		wantErr error
	}{
		{"normal requester", query.Requester{ID: "u1"}, domcand.Fields{OwnerID: "u1", Kind: "profile"}, domain.ErrForbidden},
		{"unknown kind", admin, domcand.Fields{OwnerID: "u1", Kind: "robots"}, domain.ErrUnknownKind},
		{"missing owner", admin, domcand.Fields{Kind: "profile"}, domain.ErrInvalidInput},
		{"half position", admin, domcand.Fields{OwnerID: "u1", Kind: "profile", Lat: f64(1)}, domain.ErrInvalidInput},
		{"bad latitude", admin, domcand.Fields{OwnerID: "u1", Kind: "profile", Lat: f64(91), Lon: f64(0)}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, newMockRepo())
			if _, err := svc.Upsert(context.Background(), tt.req, tt.fields); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUpsert_DropsBirthDateForKindWithout(t *testing.T) {
	svc := newService(t, newMockRepo())
	birth := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	c, err := svc.Upsert(context.Background(), admin, domcand.Fields{ID: "s1", OwnerID: "u1", Kind: "live", BirthDate: &birth})
	if err != nil {
		t.Fatal(err)
	}
	if c.BirthDate() != nil {
		t.Error("live candidates carry no birth date")
	}
}

func TestUpsert_RepositoryError(t *testing.T) {
	repo := newMockRepo()
	repo.err = domain.ErrBackingStoreUnavailable
	svc := newService(t, repo)

	_, err := svc.Upsert(context.Background(), admin, domcand.Fields{ID: "x", OwnerID: "u1", Kind: "profile"})
	if !errors.Is(err, domain.ErrBackingStoreUnavailable) {
		t.Fatalf("expected ErrBackingStoreUnavailable, got %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	repo := newMockRepo()
	repo.stored["p1"] = domcand.Reconstruct(domcand.Fields{
		ID: "p1", OwnerID: "u1", Kind: "profile", LastActivityAt: testNow.Add(-time.Hour),
	})
	repo.stored["future"] = domcand.Reconstruct(domcand.Fields{
		ID: "future", OwnerID: "u1", Kind: "profile", LastActivityAt: testNow.Add(time.Hour),
	})

	tests := []struct {
		name    string
		req     query.Requester
		id      string
		want    time.Time
		wantErr error
	}{
		{"owner", query.Requester{ID: "u1"}, "p1", testNow, nil},
		{"elevated", admin, "p1", testNow, nil},
		{"stranger", query.Requester{ID: "u2"}, "p1", time.Time{}, domain.ErrForbidden},
		{"anonymous", query.Requester{}, "p1", time.Time{}, domain.ErrForbidden},
		{"missing", admin, "nope", time.Time{}, domain.ErrNotFound},
		{"never backwards", query.Requester{ID: "u1"}, "future", testNow.Add(time.Hour), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, repo)
			got, err := svc.Heartbeat(context.Background(), tt.req, "profile", tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("last activity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeartbeat_UnknownKind(t *testing.T) {
	svc := newService(t, newMockRepo())
	if _, err := svc.Heartbeat(context.Background(), admin, "robots", "x"); !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
