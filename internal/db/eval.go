package db

import (
	"slices"

	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// Matches evaluates e against a row in process. It is the reference semantics
// every driver rendering must agree with: a missing column never matches a
// must condition and never matches (so never excludes) a mustNot condition.
func Matches(r *Record, e filter.Expression) bool {
	for _, c := range e.Must() {
		if !matchCondition(r, c) {
			return false
		}
	}
	for _, c := range e.MustNot() {
		if matchCondition(r, c) {
			return false
		}
	}
	if k := e.After(); k != nil && !k.Admits(SortKeyOf(r, k.Order)) {
		return false
	}
	return true
}

func matchCondition(r *Record, c filter.Condition) bool {
	if c.IsRange() {
		v, ok := numberOf(r, c.Target(), c.Key())
		return ok && c.Range().Contains(v)
	}
	switch c.Target() {
	case filter.Set:
		for _, v := range r.Sets[c.Key()] {
			if slices.Contains(c.Values(), v) {
				return true
			}
		}
		return false
	case filter.Flag:
		stored := "0"
		if r.Flags[c.Key()] {
			stored = filter.FlagOn
		}
		return slices.Contains(c.Values(), stored)
	default:
		v, ok := stringOf(r, c.Target(), c.Key())
		return ok && slices.Contains(c.Values(), v)
	}
}

func numberOf(r *Record, t filter.Target, key string) (float64, bool) {
	if t == filter.Numeric {
		v, ok := r.Numerics[key]
		return v, ok
	}
	switch key {
	case filter.FieldLastActivity:
		return float64(r.LastActivityMs), true
	case filter.FieldBirthDate:
		if r.BirthDateMs == nil {
			return 0, false
		}
		return float64(*r.BirthDateMs), true
	case filter.FieldLat:
		if r.Lat == nil {
			return 0, false
		}
		return *r.Lat, true
	case filter.FieldLon:
		if r.Lon == nil {
			return 0, false
		}
		return *r.Lon, true
	}
	return 0, false
}

func stringOf(r *Record, t filter.Target, key string) (string, bool) {
	if t == filter.Tag {
		v, ok := r.Tags[key]
		return v, ok
	}
	switch key {
	case filter.FieldID:
		return r.ID, true
	case filter.FieldOwnerID:
		return r.OwnerID, true
	}
	return "", false
}

// SortKeyOf projects a row onto o. The distance is the haversine distance
// to o.Near, the same value ranking computes.
func SortKeyOf(r *Record, o filter.Ordering) filter.SortKey {
	k := filter.SortKey{Priority: r.Priority, LastActivityMs: r.LastActivityMs, ID: r.ID}
	if o.Near == nil {
		return k
	}
	if p, ok := geo.PointFromPtrs(r.Lat, r.Lon); ok {
		d := geo.HaversineKm(*o.Near, p)
		k.DistanceKm = &d
	}
	return k
}

// Sort orders rows by o. Keys are computed once per row.
func Sort(rows []Record, o filter.Ordering) {
	keys := make([]filter.SortKey, len(rows))
	idx := make([]int, len(rows))
	for i := range rows {
		keys[i] = SortKeyOf(&rows[i], o)
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return o.Compare(keys[a], keys[b]) })
	sorted := make([]Record, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
}
