package dynamo

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
)

const (
	attrKind         = "kind"
	attrID           = "id"
	attrLastActivity = "last_activity"
	attrTags         = "tags"
	attrNumerics     = "nums"
	attrFlags        = "flags"
	attrSets         = "sets"
	attrPriority     = "priority"
)

// exprBuilder allocates placeholder names (#n0) and values (:v0).
type exprBuilder struct {
	names  map[string]string
	values map[string]types.AttributeValue
	byName map[string]string
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
		byName: map[string]string{},
	}
}

func (b *exprBuilder) name(n string) string {
	if p, ok := b.byName[n]; ok {
		return p
	}
	p := "#n" + strconv.Itoa(len(b.byName))
	b.byName[n] = p
	b.names[p] = n
	return p
}

func (b *exprBuilder) value(v types.AttributeValue) string {
	p := ":v" + strconv.Itoa(len(b.values))
	b.values[p] = v
	return p
}

func (b *exprBuilder) str(s string) string {
	return b.value(&types.AttributeValueMemberS{Value: s})
}

func (b *exprBuilder) num(f float64) string {
	return b.value(&types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)})
}

func (b *exprBuilder) boolean(v bool) string {
	return b.value(&types.AttributeValueMemberBOOL{Value: v})
}

func (b *exprBuilder) path(t filter.Target, key string) string {
	switch t {
	case filter.Tag:
		return b.name(attrTags) + "." + b.name(key)
	case filter.Set:
		return b.name(attrSets) + "." + b.name(key)
	case filter.Flag:
		return b.name(attrFlags) + "." + b.name(key)
	case filter.Numeric:
		return b.name(attrNumerics) + "." + b.name(key)
	}
	return b.name(key)
}

// filterExpression renders everything except kind, which is the key condition.
// DynamoDB evaluates a comparison on a missing attribute as false, so NOT
// around a mustNot condition keeps rows that lack the attribute.
func (b *exprBuilder) filterExpression(expr filter.Expression) string {
	var parts []string
	for _, c := range expr.Must() {
		if s := b.condition(c); s != "" {
			parts = append(parts, s)
		}
	}
	for _, c := range expr.MustNot() {
		if s := b.condition(c); s != "" {
			parts = append(parts, "NOT ("+s+")")
		}
	}
	if k := expr.After(); k != nil && !k.Order.ByDistance() {
		parts = append(parts, b.keyset(k))
	}
	return strings.Join(parts, " AND ")
}

// keyset renders the priority and recency tiers. A distance keyset is not
// expressible here and is left to db.Matches after the query.
func (b *exprBuilder) keyset(k *filter.Keyset) string {
	la, id := b.name(attrLastActivity), b.name(attrID)
	t := b.value(&types.AttributeValueMemberN{Value: strconv.FormatInt(k.LastActivityMs, 10)})
	tail := fmt.Sprintf("(%s < %s OR (%s = %s AND %s < %s))", la, t, la, t, id, b.str(k.ID))
	if !k.Order.PriorityFirst {
		return tail
	}
	p := b.name(attrPriority)
	if k.Priority {
		return fmt.Sprintf("(%s = %s OR %s)", p, b.boolean(false), tail)
	}
	return fmt.Sprintf("(%s = %s AND %s)", p, b.boolean(false), tail)
}

func (b *exprBuilder) condition(c filter.Condition) string {
	p := b.path(c.Target(), c.Key())
	if c.IsRange() {
		return b.rangeExpr(p, c.Range())
	}
	switch c.Target() {
	case filter.Set:
		ors := make([]string, len(c.Values()))
		for i, v := range c.Values() {
			ors[i] = fmt.Sprintf("contains(%s, %s)", p, b.str(v))
		}
		return "(" + strings.Join(ors, " OR ") + ")"
	case filter.Flag:
		on := slices.Contains(c.Values(), filter.FlagOn)
		off := slices.Contains(c.Values(), "0")
		switch {
		case on && off:
			return ""
		case on:
			return p + " = " + b.boolean(true)
		default:
			return fmt.Sprintf("(attribute_not_exists(%s) OR %s = %s)", p, p, b.boolean(false))
		}
	}
	vals := make([]string, len(c.Values()))
	for i, v := range c.Values() {
		vals[i] = b.str(v)
	}
	return p + " IN (" + strings.Join(vals, ", ") + ")"
}

func (b *exprBuilder) rangeExpr(p string, r *filter.Range) string {
	var parts []string
	if r.GT() != nil {
		parts = append(parts, p+" > "+b.num(*r.GT()))
	}
	if r.GTE() != nil {
		parts = append(parts, p+" >= "+b.num(*r.GTE()))
	}
	if r.LT() != nil {
		parts = append(parts, p+" < "+b.num(*r.LT()))
	}
	if r.LTE() != nil {
		parts = append(parts, p+" <= "+b.num(*r.LTE()))
	}
	return strings.Join(parts, " AND ")
}
