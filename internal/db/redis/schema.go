package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
)

const (
	fieldKind     = "kind"
	fieldCreated  = "created_at"
	fieldPriority = "priority"
	fieldArea     = "area"
	fieldHasPos   = "has_pos"
	fieldECEFX    = "ecef_x"
	fieldECEFY    = "ecef_y"
	fieldECEFZ    = "ecef_z"
	setSeparator  = ","

	// fieldDist is the squared chord computed per fetch, never stored.
	fieldDist = "_dist"
)

// EnsureSchema creates the FT index for a kind. An existing index is kept.
func (s *Store) EnsureSchema(ctx context.Context, schema *db.Schema) error {
	def, err := s.indexFor(schema)
	if err != nil {
		return err
	}
	if err := s.createIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return err
	}
	return nil
}

func (s *Store) indexFor(schema *db.Schema) (*IndexDefinition, error) {
	if schema == nil || schema.Kind == "" {
		return nil, fmt.Errorf("schema kind is required")
	}
	b := NewIndex(s.indexName(schema.Kind)).
		Prefix(s.keyPrefix(schema.Kind)).
		Tag(filter.FieldID).
		Tag(filter.FieldOwnerID).
		SortableNumeric(filter.FieldLastActivity).
		Numeric(filter.FieldBirthDate).
		Numeric(filter.FieldLat).
		Numeric(filter.FieldLon).
		Tag(fieldPriority).
		Numeric(fieldHasPos)
	for _, t := range schema.Tags {
		b.Tag(db.Column(filter.Tag, t))
	}
	for _, n := range schema.Numerics {
		b.Numeric(db.Column(filter.Numeric, n))
	}
	for _, f := range schema.Flags {
		b.Tag(db.Column(filter.Flag, f))
	}
	for _, set := range schema.Sets {
		b.TagList(db.Column(filter.Set, set), setSeparator)
	}
	return b.Build()
}

func (s *Store) createIndex(ctx context.Context, def *IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}
	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}
