package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/derived"
	"github.com/kailas-cloud/scout/internal/domain/discovery/cursor"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/discovery/group"
	"github.com/kailas-cloud/scout/internal/domain/discovery/page"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/discovery/rank"
	"github.com/kailas-cloud/scout/internal/domain/geo"
	"github.com/kailas-cloud/scout/internal/domain/kind"
	"github.com/kailas-cloud/scout/internal/logger"
	"github.com/kailas-cloud/scout/internal/metrics"
)

// Fetch bounds.
const (
	DefaultHardLimit  = 500
	DefaultFetchSlack = 50
)

// Config bounds every discovery request.
type Config struct {
	// HardLimit caps a single store read.
	HardLimit int
	// FetchSlack is the headroom over the page size for rows dropped after
	// the read (radius corners, self).
	FetchSlack int
	Limits     query.Limits
}

func (c Config) withDefaults() Config {
	if c.HardLimit <= 0 {
		c.HardLimit = DefaultHardLimit
	}
	if c.FetchSlack <= 0 {
		c.FetchSlack = DefaultFetchSlack
	}
	maxPage := c.Limits.MaxPageSize
	if maxPage <= 0 {
		maxPage = query.MaxPageSize
	}
	if c.HardLimit < maxPage+c.FetchSlack {
		c.HardLimit = maxPage + c.FetchSlack
	}
	return c
}

// Service runs discovery queries for every configured kind.
type Service struct {
	repo  Repository
	kinds KindRegistry
	cfg   Config
	now   func() time.Time
}

// New creates a discovery service.
func New(repo Repository, kinds KindRegistry, cfg Config) *Service {
	return &Service{repo: repo, kinds: kinds, cfg: cfg.withDefaults(), now: time.Now}
}

// Limits returns the query bounds for a kind, including its default sort.
func (s *Service) Limits(kindName string) (query.Limits, error) {
	k, err := s.kinds.Lookup(kindName)
	if err != nil {
		return query.Limits{}, err
	}
	l := s.cfg.Limits
	l.DefaultSort = k.DefaultSort
	return l, nil
}

// Discover returns one ranked page for the requester.
//
// The store is read once, in rank order and resumed after the cursor, with a
// bounded limit. Derived fields are computed, the batch is re-checked and
// ranked, and hasMore stays true whenever the read came back full.
func (s *Service) Discover(
	ctx context.Context, req query.Requester, kindName string, spec query.Spec,
) (page.Page, error) {
	k, err := s.kinds.Lookup(kindName)
	if err != nil {
		return page.Page{}, err
	}

	start := time.Now()
	pg, fetched, err := s.discover(ctx, req, k, spec)
	metrics.DiscoveryQueriesTotal.WithLabelValues(k.Name, string(spec.SortMode()), queryStatus(err)).Inc()
	metrics.DiscoveryQueryDuration.WithLabelValues(k.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return page.Page{}, err
	}
	metrics.DiscoveryFetchedRows.WithLabelValues(k.Name).Observe(float64(fetched))

	logger.FromContext(ctx).Debug("discovery_query",
		zap.String("kind", k.Name),
		zap.String("order", pg.Applied.Order),
		zap.Int("fetched", fetched),
		zap.Int("returned", len(pg.Items)),
		zap.Bool("has_more", pg.HasMore),
		zap.Bool("cursor_reset", pg.CursorReset),
		zap.Duration("took", time.Since(start)),
	)
	return pg, nil
}

func (s *Service) discover(
	ctx context.Context, req query.Requester, k kind.Kind, spec query.Spec,
) (page.Page, int, error) {
	if err := ctx.Err(); err != nil {
		return page.Page{}, 0, fmt.Errorf("%w: %w", domain.ErrCanceled, err)
	}
	log := logger.FromContext(ctx)
	now := s.now().UTC()

	order := rank.OrderFor(spec)
	fp := cursor.Fingerprint(k.Name, spec.Canonical())
	resumeKey, status := cursor.Decode(spec.Cursor(), order.Name(), fp)
	if status == cursor.Reset {
		metrics.CursorResetsTotal.WithLabelValues(k.Name).Inc()
		log.Warn("Discarding stale cursor", zap.String("kind", k.Name), zap.String("order", order.Name()))
	}

	center := spec.Center()
	var after *filter.Keyset
	if status == cursor.Valid {
		after = order.Keyset(center, resumeKey)
	}

	comp, err := compileFilters(k, spec, req, now, after)
	if err != nil {
		return page.Page{}, 0, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	comp.applied.Order = order.Name()
	for _, flag := range comp.downgraded {
		metrics.PrivilegeDowngradesTotal.WithLabelValues(k.Name, flag).Inc()
		log.Warn("Ignoring privileged include for non-elevated requester",
			zap.String("kind", k.Name),
			zap.String("flag", flag),
			zap.String("requester_id", req.ID),
		)
	}

	q := &db.FetchQuery{
		Kind:    k.Name,
		Filters: comp.expr,
		Order:   order.Storage(center),
		Limit:   s.fetchLimit(spec.PageSize()),
	}
	items, err := s.repo.Fetch(ctx, q)
	if err != nil {
		if !errors.Is(err, domain.ErrCanceled) {
			log.Error("Discovery fetch failed", zap.String("kind", k.Name), zap.Error(err))
		}
		return page.Page{}, 0, fmt.Errorf("fetch candidates: %w", err)
	}
	fetched := len(items)
	if err := ctx.Err(); err != nil {
		return page.Page{}, fetched, fmt.Errorf("%w: %w", domain.ErrCanceled, err)
	}

	items = deriveAll(items, k, center, now)
	frontier, hasFrontier := lastRanked(items, order)
	items = keep(items, spec, req)
	order.Sort(items, req.ID)

	// Storage drift inside the distance tolerance can return rows the
	// cursor already covered.
	if status == cursor.Valid {
		kept := items[:0]
		for i := range items {
			if order.After(rank.KeyOf(&items[i], req.ID), resumeKey) {
				kept = append(kept, items[i])
			}
		}
		items = kept
	}

	pg := page.Page{
		ServerTimestamp: now,
		Applied:         comp.applied,
		CursorReset:     status == cursor.Reset,
	}
	var next *rank.Key
	switch {
	case len(items) > spec.PageSize():
		items = items[:spec.PageSize()]
		last := rank.KeyOf(&items[len(items)-1], req.ID)
		next = &last
	case fetched == q.Limit && hasFrontier:
		// A full fetch means the store may hold more rows even though the
		// re-checks left the page short. Resume after the last fetched row.
		if status == cursor.Valid && !order.After(frontier, resumeKey) {
			log.Warn("Discovery scan cannot advance past cursor",
				zap.String("kind", k.Name), zap.String("order", order.Name()), zap.Int("fetched", fetched))
			break
		}
		next = &frontier
	}
	if next != nil {
		token, err := cursor.Encode(*next, order.Name(), fp)
		if err != nil {
			return page.Page{}, fetched, fmt.Errorf("encode cursor: %w", err)
		}
		pg.HasMore = true
		pg.NextCursor = token
	}
	pg.Items = items
	if spec.Group() {
		pg.Groups = group.ByArea(items)
	}
	return pg, fetched, nil
}

// fetchLimit leaves FetchSlack rows of headroom over the page plus one for
// the rows the radius re-check drops.
func (s *Service) fetchLimit(pageSize int) int {
	return max(1, min(pageSize+1+s.cfg.FetchSlack, s.cfg.HardLimit))
}

// lastRanked returns the rank key of the row that sorts last, before any row
// is dropped, so a short page can still resume past everything fetched.
func lastRanked(items []domcand.Candidate, order rank.Order) (rank.Key, bool) {
	var (
		last rank.Key
		ok   bool
	)
	for i := range items {
		key := rank.KeyOf(&items[i], "")
		if !ok || order.Compare(key, last) > 0 {
			last, ok = key, true
		}
	}
	return last, ok
}

// deriveAll computes derived fields for every fetched row.
func deriveAll(items []domcand.Candidate, k kind.Kind, center *geo.Point, now time.Time) []domcand.Candidate {
	for i := range items {
		items[i] = items[i].WithDerived(derive(&items[i], k, center, now))
	}
	return items
}

// keep re-checks the radius exactly and drops the requester's own records.
func keep(items []domcand.Candidate, spec query.Spec, req query.Requester) []domcand.Candidate {
	radius := spec.RadiusKm()
	out := items[:0]
	for i := range items {
		c := items[i]
		if req.ID != "" && (c.ID() == req.ID || c.OwnerID() == req.ID) {
			continue
		}
		if d := c.Derived().DistanceKm; radius != nil && (d == nil || *d > *radius) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func derive(c *domcand.Candidate, k kind.Kind, center *geo.Point, now time.Time) domcand.Derived {
	var d domcand.Derived
	if age, ok := derived.AgeYears(c.BirthDate(), now); ok {
		d.AgeYears = &age
	}
	mins, ok := derived.FreshnessMinutes(c.LastActivityAt(), now)
	if ok {
		d.FreshnessMinutes = &mins
	}
	d.FreshnessLabel = k.Freshness.Classify(mins, ok)

	if center != nil {
		var km float64
		p := c.Position()
		if p != nil {
			km = geo.HaversineKm(*center, *p)
			d.DistanceKm = &km
		}
		d.DistanceLabel = k.Bands.Label(km, p != nil)
	}
	return d
}

func queryStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrCanceled):
		return "canceled"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
