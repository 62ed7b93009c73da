package discovery

import (
	"context"

	"github.com/kailas-cloud/scout/internal/db"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

// Repository defines the storage contract for discovery reads.
type Repository interface {
	// Fetch returns rows in q.Order, resumed strictly after q.Filters.After().
	Fetch(ctx context.Context, q *db.FetchQuery) ([]domcand.Candidate, error)
}

// KindRegistry resolves kind configuration by name.
type KindRegistry interface {
	Lookup(name string) (kind.Kind, error)
}
