package filter

import (
	"strings"

	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// DistanceToleranceKm is the band in which a distance computed by a store
// counts as equal to the keyset distance. Rows inside the band are resolved
// by (last_activity, id), so float drift between Go and the store never
// stalls a scan.
const DistanceToleranceKm = 1e-6

// Ordering is a storage row order. Tiers apply left to right:
// priority rows first when PriorityFirst, then ascending distance from Near
// with unpositioned rows after every positioned one, then
// (last_activity DESC, id DESC). The zero Ordering is plain recency.
type Ordering struct {
	PriorityFirst bool
	Near          *geo.Point
}

// ByDistance reports whether the order has a distance tier.
func (o Ordering) ByDistance() bool { return o.Near != nil }

// SortKey is what an Ordering reads from a row. DistanceKm is nil for a
// row without a valid position.
type SortKey struct {
	Priority       bool
	DistanceKm     *float64
	LastActivityMs int64
	ID             string
}

// Compare returns a negative number when a sorts before b. Distinct ids never tie.
func (o Ordering) Compare(a, b SortKey) int {
	if o.PriorityFirst && a.Priority != b.Priority {
		if a.Priority {
			return -1
		}
		return 1
	}
	if o.Near != nil {
		switch {
		case a.DistanceKm == nil && b.DistanceKm != nil:
			return 1
		case a.DistanceKm != nil && b.DistanceKm == nil:
			return -1
		case a.DistanceKm != nil:
			if *a.DistanceKm < *b.DistanceKm {
				return -1
			}
			if *a.DistanceKm > *b.DistanceKm {
				return 1
			}
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

// Keyset resumes a scan in Order strictly after the row it describes.
type Keyset struct {
	Order          Ordering
	Priority       bool
	DistanceKm     *float64
	LastActivityMs int64
	ID             string
}

// Key returns the resumed row's sort key.
func (k Keyset) Key() SortKey {
	return SortKey{Priority: k.Priority, DistanceKm: k.DistanceKm, LastActivityMs: k.LastActivityMs, ID: k.ID}
}

// Admits reports whether a row sorts strictly after the keyset.
func (k Keyset) Admits(row SortKey) bool {
	return k.Order.Compare(row, k.Key()) > 0
}
