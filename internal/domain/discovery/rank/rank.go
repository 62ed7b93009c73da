// Package rank orders candidates with a left-to-right comparator chain that
// always ends in (lastActivity desc, id desc), so distinct ids never tie.
package rank

import (
	"slices"
	"strings"

	"github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// Primary is the main ranking criterion.
type Primary string

// Primary criteria.
const (
	ByDistance Primary = "distance"
	ByRecency  Primary = "recency"
)

// Key is everything the comparator reads from a candidate.
type Key struct {
	Self           bool     `json:"s,omitempty"`
	Priority       bool     `json:"p,omitempty"`
	DistanceKm     *float64 `json:"d,omitempty"`
	LastActivityMs int64    `json:"t"`
	ID             string   `json:"id"`
}

// KeyOf extracts the rank key. DistanceKm comes from the derived fields.
// A candidate that was never active ranks at 0 ms, as it is stored.
func KeyOf(c *candidate.Candidate, requesterID string) Key {
	k := Key{
		Self:       requesterID != "" && (c.ID() == requesterID || c.OwnerID() == requesterID),
		Priority:   c.Priority(),
		DistanceKm: c.Derived().DistanceKm,
		ID:         c.ID(),
	}
	if t := c.LastActivityAt(); !t.IsZero() {
		k.LastActivityMs = t.UnixMilli()
	}
	return k
}

// Order is a resolved comparator chain.
type Order struct {
	SelfFirst     bool
	PriorityFirst bool
	Primary       Primary
}

// OrderFor resolves a spec's sort mode. Mixed implies self and priority first,
// with distance when a center is present and recency otherwise.
func OrderFor(s query.Spec) Order {
	o := Order{SelfFirst: s.SelfFirst(), PriorityFirst: s.PriorityFirst(), Primary: ByRecency}
	switch s.SortMode() {
	case query.Distance:
		o.Primary = ByDistance
	case query.Mixed:
		o.SelfFirst, o.PriorityFirst = true, true
		if s.Center() != nil {
			o.Primary = ByDistance
		}
	}
	return o
}

// Storage is the store-side row order for a request centered at center.
// Self rows are never fetched, so SelfFirst has no storage tier.
func (o Order) Storage(center *geo.Point) filter.Ordering {
	s := filter.Ordering{PriorityFirst: o.PriorityFirst}
	if o.Primary == ByDistance {
		s.Near = center
	}
	return s
}

// Keyset resumes the storage order strictly after k.
func (o Order) Keyset(center *geo.Point, k Key) *filter.Keyset {
	return &filter.Keyset{
		Order:          o.Storage(center),
		Priority:       k.Priority,
		DistanceKm:     k.DistanceKm,
		LastActivityMs: k.LastActivityMs,
		ID:             k.ID,
	}
}

// Name is a compact identifier of the chain, stored in cursors.
func (o Order) Name() string {
	var b strings.Builder
	if o.SelfFirst {
		b.WriteString("self+")
	}
	if o.PriorityFirst {
		b.WriteString("priority+")
	}
	b.WriteString(string(o.Primary))
	return b.String()
}

// Compare returns a negative number when a ranks before b, positive when after.
// It returns 0 only for equal ids.
func (o Order) Compare(a, b Key) int {
	if o.SelfFirst && a.Self != b.Self {
		return boolFirst(a.Self)
	}
	if o.PriorityFirst && a.Priority != b.Priority {
		return boolFirst(a.Priority)
	}
	if o.Primary == ByDistance {
		if c := compareDistance(a.DistanceKm, b.DistanceKm); c != 0 {
			return c
		}
	}
	if a.LastActivityMs != b.LastActivityMs {
		if a.LastActivityMs > b.LastActivityMs {
			return -1
		}
		return 1
	}
	return -strings.Compare(a.ID, b.ID)
}

// After reports whether k ranks strictly after the cursor key.
func (o Order) After(k, cursor Key) bool {
	return o.Compare(k, cursor) > 0
}

// Sort orders items in place. Keys are computed once per item.
func (o Order) Sort(items []candidate.Candidate, requesterID string) {
	type keyed struct {
		key Key
		c   candidate.Candidate
	}
	tmp := make([]keyed, len(items))
	for i := range items {
		tmp[i] = keyed{key: KeyOf(&items[i], requesterID), c: items[i]}
	}
	slices.SortStableFunc(tmp, func(a, b keyed) int { return o.Compare(a.key, b.key) })
	for i := range tmp {
		items[i] = tmp[i].c
	}
}

func boolFirst(a bool) int {
	if a {
		return -1
	}
	return 1
}

// compareDistance sorts ascending with missing distances last.
func compareDistance(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}
