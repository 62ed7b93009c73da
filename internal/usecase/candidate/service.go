package candidate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/domain"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/logger"
)

// Service writes candidates on behalf of the profile and live-session owners.
type Service struct {
	repo  Repository
	kinds KindRegistry
	now   func() time.Time
}

// New creates a candidate service.
func New(repo Repository, kinds KindRegistry) *Service {
	return &Service{repo: repo, kinds: kinds, now: time.Now}
}

// Upsert validates and stores a candidate. Only elevated requesters write
// candidates; the profile service owns the records. An empty id gets a
// generated UUID and zero timestamps default to now.
func (s *Service) Upsert(ctx context.Context, req query.Requester, f domcand.Fields) (domcand.Candidate, error) {
	if !req.Elevated() {
		return domcand.Candidate{}, fmt.Errorf("upsert candidate: %w", domain.ErrForbidden)
	}
	k, err := s.kinds.Lookup(f.Kind)
	if err != nil {
		return domcand.Candidate{}, err
	}
	f.Kind = k.Name

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.LastActivityAt.IsZero() {
		f.LastActivityAt = now
	}
	if f.BirthDate != nil && !k.HasBirthDate {
		f.BirthDate = nil
	}

	c, err := domcand.New(f)
	if err != nil {
		return domcand.Candidate{}, domain.NewInvalidInput("candidate", err.Error())
	}
	if err := s.repo.Upsert(ctx, &c); err != nil {
		return domcand.Candidate{}, fmt.Errorf("upsert candidate: %w", err)
	}

	logger.FromContext(ctx).Info("Candidate upserted",
		zap.String("kind", c.Kind()),
		zap.String("id", c.ID()),
	)
	return c, nil
}

// Heartbeat moves a candidate's last activity to now. The owner or an
// elevated requester may call it; activity never moves backwards.
func (s *Service) Heartbeat(ctx context.Context, req query.Requester, kindName, id string) (time.Time, error) {
	k, err := s.kinds.Lookup(kindName)
	if err != nil {
		return time.Time{}, err
	}
	c, err := s.repo.Get(ctx, k.Name, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("get candidate: %w", err)
	}
	if !req.Elevated() && (req.ID == "" || (c.OwnerID() != req.ID && c.ID() != req.ID)) {
		return time.Time{}, fmt.Errorf("heartbeat %s/%s: %w", k.Name, id, domain.ErrForbidden)
	}

	now := s.now().UTC()
	if err := s.repo.Touch(ctx, k.Name, id, now); err != nil {
		return time.Time{}, fmt.Errorf("touch candidate: %w", err)
	}
	if last := c.LastActivityAt(); last.After(now) {
		return last, nil
	}
	return now, nil
}
