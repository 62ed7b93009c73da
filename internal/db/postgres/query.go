package postgres

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

const selectColumns = `id, owner_id, kind, lat, lon, last_activity, created_at, birth_date,
       tags, nums, flags, sets, priority, area`

// queryBuilder accumulates positional arguments.
type queryBuilder struct {
	args []any
	dist string
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// where renders kind plus the expression. mustNot clauses are wrapped in
// COALESCE so a NULL (missing attribute) never excludes a row.
func (b *queryBuilder) where(kind string, expr filter.Expression) string {
	parts := []string{"kind = " + b.arg(kind)}
	for _, c := range expr.Must() {
		if sql := b.condition(c); sql != "" {
			parts = append(parts, sql)
		}
	}
	for _, c := range expr.MustNot() {
		if sql := b.condition(c); sql != "" {
			parts = append(parts, "NOT COALESCE(("+sql+"), FALSE)")
		}
	}
	if k := expr.After(); k != nil {
		parts = append(parts, b.keyset(k))
	}
	return strings.Join(parts, " AND ")
}

// keyset admits rows strictly after k in k.Order. Distances within
// filter.DistanceToleranceKm of the keyset fall through to (last_activity, id).
func (b *queryBuilder) keyset(k *filter.Keyset) string {
	clause := fmt.Sprintf("(last_activity, id) < (%s, %s)", b.arg(k.LastActivityMs), b.arg(k.ID))
	if k.Order.Near != nil {
		if k.DistanceKm == nil {
			clause = fmt.Sprintf("(%s AND %s)", noPosition, clause)
		} else {
			dist := b.distance(*k.Order.Near)
			lo := b.arg(*k.DistanceKm - filter.DistanceToleranceKm)
			hi := b.arg(*k.DistanceKm + filter.DistanceToleranceKm)
			clause = fmt.Sprintf("(%s OR %s > %s OR (%s >= %s AND %s))", noPosition, dist, hi, dist, lo, clause)
		}
	}
	if k.Order.PriorityFirst {
		if k.Priority {
			return fmt.Sprintf("(NOT priority OR %s)", clause)
		}
		return fmt.Sprintf("(NOT priority AND %s)", clause)
	}
	return clause
}

const noPosition = "(lat IS NULL OR lon IS NULL)"

// distance is the haversine distance in km to near, NULL without a position.
// The expression is rendered once per query.
func (b *queryBuilder) distance(near geo.Point) string {
	if b.dist != "" {
		return b.dist
	}
	lat, lon := b.arg(near.Lat), b.arg(near.Lon)
	b.dist = fmt.Sprintf(
		"2 * %g * asin(sqrt(power(sin(radians(lat - %s) / 2), 2) + "+
			"cos(radians(%s)) * cos(radians(lat)) * power(sin(radians(lon - %s) / 2), 2)))",
		geo.EarthRadiusKm, lat, lat, lon)
	return b.dist
}

func (b *queryBuilder) condition(c filter.Condition) string {
	if c.IsRange() {
		return b.rangeSQL(b.numericExpr(c.Target(), c.Key()), c.Range())
	}
	switch c.Target() {
	case filter.Tag:
		return fmt.Sprintf("tags->>(%s::text) = ANY(%s)", b.arg(c.Key()), b.arg(pq.Array(c.Values())))
	case filter.Set:
		return fmt.Sprintf("sets->(%s::text) ?| %s", b.arg(c.Key()), b.arg(pq.Array(c.Values())))
	case filter.Flag:
		on := slices.Contains(c.Values(), filter.FlagOn)
		off := slices.Contains(c.Values(), "0")
		flag := fmt.Sprintf("COALESCE((flags->>(%s::text))::boolean, FALSE)", b.arg(c.Key()))
		switch {
		case on && off:
			return ""
		case on:
			return flag
		default:
			return "NOT " + flag
		}
	}
	col := fieldColumn(c.Key())
	if col == "" {
		return "FALSE"
	}
	return fmt.Sprintf("%s = ANY(%s)", col, b.arg(pq.Array(c.Values())))
}

func (b *queryBuilder) numericExpr(t filter.Target, key string) string {
	if t == filter.Numeric {
		return fmt.Sprintf("(nums->>(%s::text))::double precision", b.arg(key))
	}
	if col := fieldColumn(key); col != "" {
		return col
	}
	return "NULL"
}

func (b *queryBuilder) rangeSQL(expr string, r *filter.Range) string {
	var parts []string
	if r.GT() != nil {
		parts = append(parts, expr+" > "+b.arg(*r.GT()))
	}
	if r.GTE() != nil {
		parts = append(parts, expr+" >= "+b.arg(*r.GTE()))
	}
	if r.LT() != nil {
		parts = append(parts, expr+" < "+b.arg(*r.LT()))
	}
	if r.LTE() != nil {
		parts = append(parts, expr+" <= "+b.arg(*r.LTE()))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " AND ")
}

// fieldColumn whitelists the row columns a Field condition can address.
func fieldColumn(key string) string {
	switch key {
	case filter.FieldID, filter.FieldOwnerID, filter.FieldLastActivity,
		filter.FieldBirthDate, filter.FieldLat, filter.FieldLon:
		return key
	}
	return ""
}

// orderBy renders o: priority, then distance with missing positions last,
// then recency.
func (b *queryBuilder) orderBy(o filter.Ordering) string {
	var keys []string
	if o.PriorityFirst {
		keys = append(keys, "priority DESC")
	}
	if o.Near != nil {
		keys = append(keys, noPosition, b.distance(*o.Near))
	}
	keys = append(keys, "last_activity DESC", "id DESC")
	return strings.Join(keys, ", ")
}

func buildFetch(table string, q *db.FetchQuery) (string, []any) {
	b := &queryBuilder{}
	where := b.where(q.Kind, q.Filters)
	order := b.orderBy(q.Order)
	limit := b.arg(q.Limit)
	query := "SELECT " + selectColumns + "\nFROM " + table +
		"\nWHERE " + where +
		"\nORDER BY " + order +
		"\nLIMIT " + limit
	return query, b.args
}
