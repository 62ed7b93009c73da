package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kailas-cloud/scout/internal/db"
)

// EnsureSchema creates the recency, owner and per-attribute indexes.
// CreateMany is idempotent for identical specs.
func (s *Store) EnsureSchema(ctx context.Context, schema *db.Schema) error {
	if schema == nil || schema.Kind == "" {
		return fmt.Errorf("%w: schema kind is required", db.ErrInvalidQuery)
	}
	if _, err := s.collection(schema.Kind).Indexes().CreateMany(ctx, indexModels(schema)); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

func indexModels(schema *db.Schema) []mongo.IndexModel {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldLastActivity, Value: -1}, {Key: fieldID, Value: -1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
	}
	for _, t := range schema.Tags {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: fieldTags + "." + t, Value: 1}}})
	}
	for _, set := range schema.Sets {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: fieldSets + "." + set, Value: 1}}})
	}
	return models
}
