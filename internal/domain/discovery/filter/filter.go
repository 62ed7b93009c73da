// Package filter holds the backend-neutral predicate that every store driver renders.
package filter

import "fmt"

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 64

// Target tells drivers which storage column family a condition addresses.
type Target int

// Condition targets.
const (
	// Field is a fixed column: id, owner_id, last_activity, birth_date, lat, lon.
	Field Target = iota
	// Tag is a single-valued categorical attribute.
	Tag
	// Set is a multi-valued attribute; In matches when any value intersects.
	Set
	// Flag is a boolean attribute stored as "1"/"0"; missing reads as "0".
	Flag
	// Numeric is a numeric attribute.
	Numeric
)

func (t Target) String() string {
	switch t {
	case Field:
		return "field"
	case Tag:
		return "tag"
	case Set:
		return "set"
	case Flag:
		return "flag"
	case Numeric:
		return "numeric"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Fixed column names.
const (
	FieldID           = "id"
	FieldOwnerID      = "owner_id"
	FieldLastActivity = "last_activity"
	FieldBirthDate    = "birth_date"
	FieldLat          = "lat"
	FieldLon          = "lon"
)

// FlagOn is the stored value of a set flag.
const FlagOn = "1"

// Expression is a conjunction of must conditions and negated mustNot conditions,
// optionally resumed after a keyset.
type Expression struct {
	must    []Condition
	mustNot []Condition
	after   *Keyset
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, mustNot []Condition, after *Keyset) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	if after != nil && after.ID == "" {
		return Expression{}, fmt.Errorf("keyset id is required")
	}
	return Expression{must: must, mustNot: mustNot, after: after}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// After returns the resume keyset, nil on a first page.
func (e Expression) After() *Keyset { return e.after }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.mustNot) == 0 && e.after == nil
}

// Condition is a single clause: a value membership or a numeric range.
type Condition struct {
	target    Target
	key       string
	values    []string
	rangeExpr *Range
}

// NewIn creates a membership condition: the stored value (or any set member) is one of values.
func NewIn(target Target, key string, values []string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	for _, v := range values {
		if v == "" {
			return Condition{}, fmt.Errorf("empty value for key %q", key)
		}
	}
	if target == Numeric {
		return Condition{}, fmt.Errorf("membership is not supported for numeric key %q", key)
	}
	return Condition{target: target, key: key, values: values}, nil
}

// NewMatch creates an exact match condition.
func NewMatch(target Target, key, value string) (Condition, error) {
	return NewIn(target, key, []string{value})
}

// NewRange creates a numeric range condition.
func NewRange(target Target, key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if target != Numeric && target != Field {
		return Condition{}, fmt.Errorf("range is not supported for %s key %q", target, key)
	}
	return Condition{target: target, key: key, rangeExpr: &r}, nil
}

// Target returns the column family.
func (c Condition) Target() Target { return c.target }

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Values returns the accepted values of a membership condition.
func (c Condition) Values() []string { return c.values }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsIn reports whether this is a membership condition.
func (c Condition) IsIn() bool { return len(c.values) > 0 }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v satisfies every boundary.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && !(v > *r.gt) {
		return false
	}
	if r.gte != nil && !(v >= *r.gte) {
		return false
	}
	if r.lt != nil && !(v < *r.lt) {
		return false
	}
	if r.lte != nil && !(v <= *r.lte) {
		return false
	}
	return true
}
