package candidate

import (
	"context"
	"time"

	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

// Repository defines the storage contract for candidate writes.
type Repository interface {
	Get(ctx context.Context, kind, id string) (domcand.Candidate, error)
	Upsert(ctx context.Context, c *domcand.Candidate) error
	Touch(ctx context.Context, kind, id string, at time.Time) error
}

// KindRegistry resolves kind configuration by name.
type KindRegistry interface {
	Lookup(name string) (kind.Kind, error)
}
