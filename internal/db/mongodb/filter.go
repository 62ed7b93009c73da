package mongodb

import (
	"math"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// buildFilter renders the expression as a find filter. mustNot conditions
// go through $nor so a missing field never excludes a document. A distance
// keyset reads computed fields and is matched by distancePipeline instead.
func buildFilter(expr filter.Expression) bson.D {
	var clauses bson.A
	for _, c := range expr.Must() {
		if d := buildCondition(c); len(d) > 0 {
			clauses = append(clauses, d)
		}
	}
	var nor bson.A
	for _, c := range expr.MustNot() {
		if d := buildCondition(c); len(d) > 0 {
			nor = append(nor, d)
		}
	}
	if len(nor) > 0 {
		clauses = append(clauses, bson.D{{Key: "$nor", Value: nor}})
	}
	if k := expr.After(); k != nil && !k.Order.ByDistance() {
		clauses = append(clauses, keysetClause(k))
	}

	switch len(clauses) {
	case 0:
		return bson.D{}
	case 1:
		return clauses[0].(bson.D)
	default:
		return bson.D{{Key: "$and", Value: clauses}}
	}
}

// keysetClause admits documents strictly after k. Distance tiers read the
// fields distancePipeline adds. Distances within filter.DistanceToleranceKm
// of the keyset fall through to (last_activity, _id).
func keysetClause(k *filter.Keyset) bson.D {
	clause := recencyAfter(k.LastActivityMs, k.ID)
	if k.Order.ByDistance() {
		noPos := bson.D{{Key: fieldNoPosition, Value: 1}}
		if k.DistanceKm == nil {
			clause = bson.D{{Key: "$and", Value: bson.A{noPos, clause}}}
		} else {
			lo := *k.DistanceKm - filter.DistanceToleranceKm
			hi := *k.DistanceKm + filter.DistanceToleranceKm
			clause = bson.D{{Key: "$or", Value: bson.A{
				noPos,
				bson.D{{Key: fieldDistance, Value: bson.D{{Key: "$gt", Value: hi}}}},
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: fieldDistance, Value: bson.D{{Key: "$gte", Value: lo}}}},
					clause,
				}}},
			}}}
		}
	}
	if k.Order.PriorityFirst {
		op := "$and"
		if k.Priority {
			op = "$or"
		}
		notPriority := bson.D{{Key: fieldPriority, Value: bson.D{{Key: "$ne", Value: true}}}}
		clause = bson.D{{Key: op, Value: bson.A{notPriority, clause}}}
	}
	return clause
}

// recencyAfter is (last_activity, _id) < (t, id).
func recencyAfter(t int64, id string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: fieldLastActivity, Value: bson.D{{Key: "$lt", Value: t}}}},
		bson.D{
			{Key: fieldLastActivity, Value: t},
			{Key: fieldID, Value: bson.D{{Key: "$lt", Value: id}}},
		},
	}}}
}

// sortSpec renders o. _id sorts by binary comparison, the same byte order
// as the keyset.
func sortSpec(o filter.Ordering) bson.D {
	var spec bson.D
	if o.PriorityFirst {
		spec = append(spec, bson.E{Key: fieldPriority, Value: -1})
	}
	if o.ByDistance() {
		spec = append(spec, bson.E{Key: fieldNoPosition, Value: 1}, bson.E{Key: fieldDistance, Value: 1})
	}
	return append(spec, bson.E{Key: fieldLastActivity, Value: -1}, bson.E{Key: fieldID, Value: -1})
}

// distancePipeline computes the haversine distance to q.Order.Near per
// document, resumes the keyset on it, then sorts and limits.
func distancePipeline(q *db.FetchQuery) mongo.Pipeline {
	p := mongo.Pipeline{
		{{Key: "$match", Value: buildFilter(q.Filters)}},
		{{Key: "$addFields", Value: bson.D{
			{Key: fieldNoPosition, Value: noPositionExpr()},
			{Key: fieldDistance, Value: distanceExpr(*q.Order.Near)},
		}}},
	}
	if k := q.Filters.After(); k != nil && k.Order.ByDistance() {
		p = append(p, bson.D{{Key: "$match", Value: keysetClause(k)}})
	}
	return append(p,
		bson.D{{Key: "$sort", Value: sortSpec(q.Order)}},
		bson.D{{Key: "$limit", Value: int64(q.Limit)}},
		bson.D{{Key: "$project", Value: bson.D{{Key: fieldNoPosition, Value: 0}, {Key: fieldDistance, Value: 0}}}},
	)
}

func noPositionExpr() bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$isNumber", Value: "$" + filter.FieldLat}},
			bson.D{{Key: "$isNumber", Value: "$" + filter.FieldLon}},
		}}},
		0, 1,
	}}}
}

// distanceExpr mirrors geo.HaversineKm. It evaluates to null without a position.
func distanceExpr(c geo.Point) bson.D {
	halfSin := func(field string, center float64) bson.D {
		delta := bson.D{{Key: "$degreesToRadians", Value: bson.D{{Key: "$subtract", Value: bson.A{"$" + field, center}}}}}
		return bson.D{{Key: "$sin", Value: bson.D{{Key: "$divide", Value: bson.A{delta, 2}}}}}
	}
	square := func(v bson.D) bson.D { return bson.D{{Key: "$pow", Value: bson.A{v, 2}}} }
	cosLat := bson.D{{Key: "$cos", Value: bson.D{{Key: "$degreesToRadians", Value: "$" + filter.FieldLat}}}}

	h := bson.D{{Key: "$add", Value: bson.A{
		square(halfSin(filter.FieldLat, c.Lat)),
		bson.D{{Key: "$multiply", Value: bson.A{
			math.Cos(c.Lat * math.Pi / 180), cosLat, square(halfSin(filter.FieldLon, c.Lon)),
		}}},
	}}}
	return bson.D{{Key: "$multiply", Value: bson.A{
		2 * geo.EarthRadiusKm,
		bson.D{{Key: "$asin", Value: bson.D{{Key: "$sqrt", Value: bson.D{{Key: "$min", Value: bson.A{h, 1}}}}}}},
	}}}
}

func buildCondition(c filter.Condition) bson.D {
	path := fieldPath(c.Target(), c.Key())
	if c.IsRange() {
		return bson.D{{Key: path, Value: rangeOps(c.Range())}}
	}
	if c.Target() == filter.Flag {
		return flagCondition(path, c.Values())
	}
	vals := make(bson.A, len(c.Values()))
	for i, v := range c.Values() {
		vals[i] = v
	}
	return bson.D{{Key: path, Value: bson.D{{Key: "$in", Value: vals}}}}
}

// flagCondition treats a missing flag as false.
func flagCondition(path string, values []string) bson.D {
	on := slices.Contains(values, filter.FlagOn)
	off := slices.Contains(values, "0")
	switch {
	case on && off:
		return nil
	case on:
		return bson.D{{Key: path, Value: true}}
	default:
		return bson.D{{Key: path, Value: bson.D{{Key: "$ne", Value: true}}}}
	}
}

func rangeOps(r *filter.Range) bson.D {
	var ops bson.D
	if r.GT() != nil {
		ops = append(ops, bson.E{Key: "$gt", Value: *r.GT()})
	}
	if r.GTE() != nil {
		ops = append(ops, bson.E{Key: "$gte", Value: *r.GTE()})
	}
	if r.LT() != nil {
		ops = append(ops, bson.E{Key: "$lt", Value: *r.LT()})
	}
	if r.LTE() != nil {
		ops = append(ops, bson.E{Key: "$lte", Value: *r.LTE()})
	}
	return ops
}

func fieldPath(t filter.Target, key string) string {
	switch t {
	case filter.Tag:
		return fieldTags + "." + key
	case filter.Set:
		return fieldSets + "." + key
	case filter.Flag:
		return fieldFlags + "." + key
	case filter.Numeric:
		return fieldNumerics + "." + key
	}
	if key == filter.FieldID {
		return fieldID
	}
	return key
}
