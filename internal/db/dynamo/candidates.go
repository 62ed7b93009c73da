package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

type item struct {
	Kind         string              `dynamodbav:"kind"`
	ID           string              `dynamodbav:"id"`
	OwnerID      string              `dynamodbav:"owner_id"`
	Lat          *float64            `dynamodbav:"lat,omitempty"`
	Lon          *float64            `dynamodbav:"lon,omitempty"`
	LastActivity int64               `dynamodbav:"last_activity"`
	CreatedAt    int64               `dynamodbav:"created_at"`
	BirthDate    *int64              `dynamodbav:"birth_date,omitempty"`
	Tags         map[string]string   `dynamodbav:"tags,omitempty"`
	Numerics     map[string]float64  `dynamodbav:"nums,omitempty"`
	Flags        map[string]bool     `dynamodbav:"flags,omitempty"`
	Sets         map[string][]string `dynamodbav:"sets,omitempty"`
	Priority     bool                `dynamodbav:"priority"`
	Area         string              `dynamodbav:"area,omitempty"`
}

func (it *item) record() db.Record {
	return db.Record{
		ID:             it.ID,
		OwnerID:        it.OwnerID,
		Kind:           it.Kind,
		Lat:            it.Lat,
		Lon:            it.Lon,
		LastActivityMs: it.LastActivity,
		CreatedMs:      it.CreatedAt,
		BirthDateMs:    it.BirthDate,
		Tags:           it.Tags,
		Numerics:       it.Numerics,
		Flags:          it.Flags,
		Sets:           it.Sets,
		Priority:       it.Priority,
		Area:           it.Area,
	}
}

func key(kind, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKind: &types.AttributeValueMemberS{Value: kind},
		attrID:   &types.AttributeValueMemberS{Value: id},
	}
}

// Fetch queries the kind partition with the rendered FilterExpression,
// follows LastEvaluatedKey to the end, re-checks rows with db.Matches and
// returns the first q.Limit rows in the requested order.
func (s *Store) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	if q.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", db.ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", db.ErrInvalidQuery)
	}

	b := newExprBuilder()
	keyCond := b.name(attrKind) + " = " + b.str(q.Kind)
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String(keyCond),
	}
	if f := b.filterExpression(q.Filters); f != "" {
		in.FilterExpression = aws.String(f)
	}
	in.ExpressionAttributeNames = b.names
	in.ExpressionAttributeValues = b.values

	var out []db.Record
	pages := dynamodb.NewQueryPaginator(s.client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		var items []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		for i := range items {
			rec := items[i].record()
			if db.Matches(&rec, q.Filters) {
				out = append(out, rec)
			}
		}
	}

	db.Sort(out, q.Order)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Get reads one item.
func (s *Store) Get(ctx context.Context, kind, id string) (*db.Record, error) {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(kind, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	if len(res.Item) == 0 {
		return nil, db.ErrKeyNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(res.Item, &it); err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	rec := it.record()
	return &rec, nil
}

// Upsert writes every attribute except last_activity, which is initialized
// on insert and then moved forward by Touch.
func (s *Store) Upsert(ctx context.Context, rec *db.Record) error {
	if rec.ID == "" || rec.Kind == "" {
		return fmt.Errorf("%w: id and kind are required", db.ErrInvalidQuery)
	}
	in, err := s.upsertInput(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", db.ErrInvalidQuery, err)
	}
	if _, err := s.client.UpdateItem(ctx, in); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return s.Touch(ctx, rec.Kind, rec.ID, time.UnixMilli(rec.LastActivityMs))
}

func (s *Store) upsertInput(rec *db.Record) (*dynamodb.UpdateItemInput, error) {
	b := newExprBuilder()
	var sets, removes []string
	assign := func(name string, v any) error {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		sets = append(sets, b.name(name)+" = "+b.value(av))
		return nil
	}
	optional := func(name string, present bool, v any) error {
		if !present {
			removes = append(removes, b.name(name))
			return nil
		}
		return assign(name, v)
	}

	la := b.name(attrLastActivity)
	sets = append(sets, fmt.Sprintf("%s = if_not_exists(%s, %s)", la, la,
		b.value(&types.AttributeValueMemberN{Value: strconv.FormatInt(rec.LastActivityMs, 10)})))

	p, hasPos := geo.PointFromPtrs(rec.Lat, rec.Lon)
	var birth int64
	if rec.BirthDateMs != nil {
		birth = *rec.BirthDateMs
	}
	steps := []error{
		assign("owner_id", rec.OwnerID),
		assign("created_at", rec.CreatedMs),
		assign("priority", rec.Priority),
		optional("lat", hasPos, p.Lat),
		optional("lon", hasPos, p.Lon),
		optional("birth_date", rec.BirthDateMs != nil, birth),
		optional("area", rec.Area != "", rec.Area),
		optional(attrTags, len(rec.Tags) > 0, rec.Tags),
		optional(attrNumerics, len(rec.Numerics) > 0, rec.Numerics),
		optional(attrFlags, len(rec.Flags) > 0, rec.Flags),
		optional(attrSets, len(rec.Sets) > 0, rec.Sets),
	}
	if err := errors.Join(steps...); err != nil {
		return nil, err
	}

	update := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		update += " REMOVE " + strings.Join(removes, ", ")
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(rec.Kind, rec.ID),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  b.names,
		ExpressionAttributeValues: b.values,
	}, nil
}

// Touch sets last_activity only when the item exists and the new value is
// larger. A failed condition with no old item means the key is missing.
func (s *Store) Touch(ctx context.Context, kind, id string, at time.Time) error {
	b := newExprBuilder()
	la, idName := b.name(attrLastActivity), b.name(attrID)
	v := b.value(&types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixMilli(), 10)})

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.table),
		Key:                                 key(kind, id),
		UpdateExpression:                    aws.String("SET " + la + " = " + v),
		ConditionExpression:                 aws.String(fmt.Sprintf("attribute_exists(%s) AND %s < %s", idName, la, v)),
		ExpressionAttributeNames:            b.names,
		ExpressionAttributeValues:           b.values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return db.ErrKeyNotFound
		}
		return nil
	}
	return &db.Error{Op: db.OpTouch, Err: err}
}
