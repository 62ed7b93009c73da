package discovery

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/kailas-cloud/scout/internal/domain/derived"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/discovery/page"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/geo"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

// compiled is the output of compileFilters.
type compiled struct {
	expr    filter.Expression
	applied page.AppliedFilters
	// downgraded lists privileged include toggles ignored for the requester.
	downgraded []string
}

// compileFilters turns a spec into a backend-neutral expression and the
// echo of what was honored. Unknown attributes and values are dropped rather
// than rejected. after is pushed down only when the caller decided storage
// order equals rank order.
func compileFilters(
	k kind.Kind, spec query.Spec, req query.Requester, now time.Time, after *filter.Keyset,
) (compiled, error) {
	var (
		must    []filter.Condition
		mustNot []filter.Condition
		out     = compiled{applied: page.NewAppliedFilters()}
	)
	add := func(dst *[]filter.Condition, c filter.Condition, err error) error {
		if err != nil {
			return err
		}
		*dst = append(*dst, c)
		return nil
	}

	for _, attr := range sortedKeys(spec.Categorical()) {
		kept, dropped := allowed(k, attr, spec.Categorical()[attr])
		if len(dropped) > 0 {
			out.applied.Dropped[attr] = dropped
		}
		if len(kept) == 0 {
			continue
		}
		c, err := filter.NewIn(filter.Tag, attr, kept)
		if err := add(&must, c, err); err != nil {
			return compiled{}, fmt.Errorf("categorical %s: %w", attr, err)
		}
		out.applied.Categorical[attr] = kept
	}

	if k.HasBirthDate {
		minAge, maxAge := spec.AgeRange()
		if c, ok, err := ageCondition(minAge, maxAge, now); err != nil {
			return compiled{}, fmt.Errorf("age: %w", err)
		} else if ok {
			must = append(must, c)
			out.applied.AgeMin, out.applied.AgeMax = minAge, maxAge
		}
	}

	for _, attr := range sortedKeys(spec.Numeric()) {
		if !k.HasNumeric(attr) {
			continue
		}
		r := spec.Numeric()[attr]
		rng, err := filter.NewRangeFilter(nil, r.Min, nil, r.Max)
		if err != nil {
			return compiled{}, fmt.Errorf("numeric %s: %w", attr, err)
		}
		c, err := filter.NewRange(filter.Numeric, attr, rng)
		if err := add(&must, c, err); err != nil {
			return compiled{}, fmt.Errorf("numeric %s: %w", attr, err)
		}
		out.applied.Numeric[attr] = r
	}

	for _, flag := range sortedKeys(spec.Flags()) {
		if !k.HasFlag(flag) {
			continue
		}
		on := spec.Flags()[flag]
		c, err := filter.NewMatch(filter.Flag, flag, filter.FlagOn)
		dst := &must
		if !on {
			dst = &mustNot
		}
		if err := add(dst, c, err); err != nil {
			return compiled{}, fmt.Errorf("flag %s: %w", flag, err)
		}
		out.applied.Flags[flag] = on
	}

	for _, attr := range sortedKeys(spec.Sets()) {
		if !k.HasSet(attr) {
			continue
		}
		vals := spec.Sets()[attr]
		c, err := filter.NewIn(filter.Set, attr, vals)
		if err := add(&must, c, err); err != nil {
			return compiled{}, fmt.Errorf("set %s: %w", attr, err)
		}
		out.applied.Sets[attr] = vals
	}

	// Privileged flags hide their candidates unless an elevated requester opts in.
	for _, flag := range k.PrivilegedFlags {
		requested := spec.Include()[flag]
		honored := requested && req.Elevated()
		out.applied.Include[flag] = honored
		if requested && !honored {
			out.downgraded = append(out.downgraded, flag)
		}
		if honored {
			continue
		}
		c, err := filter.NewMatch(filter.Flag, flag, filter.FlagOn)
		if err := add(&mustNot, c, err); err != nil {
			return compiled{}, fmt.Errorf("privileged flag %s: %w", flag, err)
		}
	}

	if d := spec.ActiveWithin(); d > 0 {
		since := float64(now.Add(-d).UnixMilli())
		rng, err := filter.NewRangeFilter(nil, &since, nil, nil)
		if err != nil {
			return compiled{}, fmt.Errorf("active within: %w", err)
		}
		c, err := filter.NewRange(filter.Field, filter.FieldLastActivity, rng)
		if err := add(&must, c, err); err != nil {
			return compiled{}, fmt.Errorf("active within: %w", err)
		}
		out.applied.ActiveWithin = d
	}

	if center, radius := spec.Center(), spec.RadiusKm(); center != nil && radius != nil {
		box, err := boxConditions(geo.BoundingBox(*center, *radius))
		if err != nil {
			return compiled{}, fmt.Errorf("radius: %w", err)
		}
		must = append(must, box...)
	}

	if req.ID != "" {
		for _, field := range []string{filter.FieldOwnerID, filter.FieldID} {
			c, err := filter.NewMatch(filter.Field, field, req.ID)
			if err := add(&mustNot, c, err); err != nil {
				return compiled{}, fmt.Errorf("self exclusion: %w", err)
			}
		}
	}

	expr, err := filter.NewExpression(must, mustNot, after)
	if err != nil {
		return compiled{}, err
	}
	out.expr = expr
	out.applied.Center = spec.Center()
	out.applied.RadiusKm = spec.RadiusKm()
	out.applied.SortMode = spec.SortMode()
	out.applied.PageSize = spec.PageSize()
	return out, nil
}

// allowed splits requested values by the kind vocabulary. An unknown
// attribute drops every value; a nil vocabulary keeps every value.
func allowed(k kind.Kind, attr string, values []string) (kept, dropped []string) {
	vocab, known := k.Vocabulary(attr)
	if !known {
		return nil, values
	}
	if vocab == nil {
		return values, nil
	}
	for _, v := range values {
		if slices.Contains(vocab, v) {
			kept = append(kept, v)
		} else {
			dropped = append(dropped, v)
		}
	}
	return kept, dropped
}

// ageCondition inverts an age range into a birth date range. Age is decided
// by calendar date, so bounds are whole UTC days: born on or after the day
// following (today - (max+1) years) and before the end of (today - min years).
func ageCondition(minAge, maxAge *int, now time.Time) (filter.Condition, bool, error) {
	if minAge == nil && maxAge == nil {
		return filter.Condition{}, false, nil
	}
	var gte, lt *float64
	if maxAge != nil {
		v := float64(derived.YearsBefore(now, *maxAge+1).AddDate(0, 0, 1).UnixMilli())
		gte = &v
	}
	if minAge != nil {
		v := float64(derived.YearsBefore(now, *minAge).AddDate(0, 0, 1).UnixMilli())
		lt = &v
	}
	rng, err := filter.NewRangeFilter(nil, gte, lt, nil)
	if err != nil {
		return filter.Condition{}, false, err
	}
	c, err := filter.NewRange(filter.Field, filter.FieldBirthDate, rng)
	if err != nil {
		return filter.Condition{}, false, err
	}
	return c, true, nil
}

// boxConditions narrows a geo query to lat/lon ranges. Candidates without a
// position never match, which is what a radius filter means.
func boxConditions(b geo.Box) ([]filter.Condition, error) {
	lat, err := between(filter.FieldLat, b.MinLat, b.MaxLat)
	if err != nil {
		return nil, err
	}
	if !b.HasLon {
		return []filter.Condition{lat}, nil
	}
	lon, err := between(filter.FieldLon, b.MinLon, b.MaxLon)
	if err != nil {
		return nil, err
	}
	return []filter.Condition{lat, lon}, nil
}

func between(field string, lo, hi float64) (filter.Condition, error) {
	rng, err := filter.NewRangeFilter(nil, &lo, nil, &hi)
	if err != nil {
		return filter.Condition{}, err
	}
	return filter.NewRange(filter.Field, field, rng)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
