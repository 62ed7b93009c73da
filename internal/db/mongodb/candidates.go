package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

const (
	fieldID           = "_id"
	fieldLastActivity = filter.FieldLastActivity
	fieldTags         = "tags"
	fieldNumerics     = "num"
	fieldFlags        = "flags"
	fieldSets         = "sets"
	fieldPriority     = "priority"

	// Computed by distancePipeline, never stored.
	fieldNoPosition = "_nopos"
	fieldDistance   = "_dist"
)

type document struct {
	ID           string              `bson:"_id"`
	OwnerID      string              `bson:"owner_id"`
	Kind         string              `bson:"kind"`
	Lat          *float64            `bson:"lat,omitempty"`
	Lon          *float64            `bson:"lon,omitempty"`
	LastActivity int64               `bson:"last_activity"`
	CreatedAt    int64               `bson:"created_at"`
	BirthDate    *int64              `bson:"birth_date,omitempty"`
	Tags         map[string]string   `bson:"tags,omitempty"`
	Numerics     map[string]float64  `bson:"num,omitempty"`
	Flags        map[string]bool     `bson:"flags,omitempty"`
	Sets         map[string][]string `bson:"sets,omitempty"`
	Priority     bool                `bson:"priority"`
	Area         string              `bson:"area,omitempty"`
}

func (d *document) record() db.Record {
	return db.Record{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		Kind:           d.Kind,
		Lat:            d.Lat,
		Lon:            d.Lon,
		LastActivityMs: d.LastActivity,
		CreatedMs:      d.CreatedAt,
		BirthDateMs:    d.BirthDate,
		Tags:           d.Tags,
		Numerics:       d.Numerics,
		Flags:          d.Flags,
		Sets:           d.Sets,
		Priority:       d.Priority,
		Area:           d.Area,
	}
}

// upsertUpdate builds the update document for Upsert. Optional fields that
// are absent in rec are unset so the stored document mirrors rec, and
// last_activity goes through $max.
func upsertUpdate(rec *db.Record) bson.D {
	set := bson.D{
		{Key: "owner_id", Value: rec.OwnerID},
		{Key: "kind", Value: rec.Kind},
		{Key: "created_at", Value: rec.CreatedMs},
		{Key: fieldPriority, Value: rec.Priority},
	}
	unset := bson.D{}
	optional := func(name string, present bool, v any) {
		if present {
			set = append(set, bson.E{Key: name, Value: v})
		} else {
			unset = append(unset, bson.E{Key: name, Value: ""})
		}
	}

	p, hasPos := geo.PointFromPtrs(rec.Lat, rec.Lon)
	optional(filter.FieldLat, hasPos, p.Lat)
	optional(filter.FieldLon, hasPos, p.Lon)
	var birth int64
	if rec.BirthDateMs != nil {
		birth = *rec.BirthDateMs
	}
	optional(filter.FieldBirthDate, rec.BirthDateMs != nil, birth)
	optional("area", rec.Area != "", rec.Area)
	optional(fieldTags, len(rec.Tags) > 0, rec.Tags)
	optional(fieldNumerics, len(rec.Numerics) > 0, rec.Numerics)
	optional(fieldFlags, len(rec.Flags) > 0, rec.Flags)
	optional(fieldSets, len(rec.Sets) > 0, rec.Sets)

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$max", Value: bson.D{{Key: fieldLastActivity, Value: rec.LastActivityMs}}},
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

// Upsert writes the document; last_activity never moves backwards.
func (s *Store) Upsert(ctx context.Context, rec *db.Record) error {
	if rec.ID == "" || rec.Kind == "" {
		return fmt.Errorf("%w: id and kind are required", db.ErrInvalidQuery)
	}
	_, err := s.collection(rec.Kind).UpdateOne(ctx,
		bson.D{{Key: fieldID, Value: rec.ID}},
		upsertUpdate(rec),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// Touch applies $max to last_activity.
func (s *Store) Touch(ctx context.Context, kind, id string, at time.Time) error {
	res, err := s.collection(kind).UpdateOne(ctx,
		bson.D{{Key: fieldID, Value: id}},
		bson.D{{Key: "$max", Value: bson.D{{Key: fieldLastActivity, Value: at.UnixMilli()}}}},
	)
	if err != nil {
		return &db.Error{Op: db.OpTouch, Err: err}
	}
	if res.MatchedCount == 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// Get reads one document by id.
func (s *Store) Get(ctx context.Context, kind, id string) (*db.Record, error) {
	var doc document
	err := s.collection(kind).FindOne(ctx, bson.D{{Key: fieldID, Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	rec := doc.record()
	if rec.Kind == "" {
		rec.Kind = kind
	}
	return &rec, nil
}

// Fetch runs a sorted, limited find, or an aggregation when the order
// has a distance tier.
func (s *Store) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	if q.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", db.ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", db.ErrInvalidQuery)
	}

	coll := s.collection(q.Kind)
	var (
		cur *mongo.Cursor
		err error
	)
	if q.Order.ByDistance() {
		cur, err = coll.Aggregate(ctx, distancePipeline(q))
	} else {
		opts := options.Find().SetSort(sortSpec(q.Order)).SetLimit(int64(q.Limit))
		cur, err = coll.Find(ctx, buildFilter(q.Filters), opts)
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpFind, Err: err}
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &db.Error{Op: db.OpFind, Err: err}
	}
	out := make([]db.Record, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].record())
	}
	return out, nil
}
