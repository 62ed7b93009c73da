package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// Upsert inserts or replaces the row; last_activity goes through GREATEST.
func (s *Store) Upsert(ctx context.Context, rec *db.Record) error {
	if rec.ID == "" || rec.Kind == "" {
		return fmt.Errorf("%w: id and kind are required", db.ErrInvalidQuery)
	}
	attrs, err := encodeAttributes(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", db.ErrInvalidQuery, err)
	}

	var lat, lon sql.NullFloat64
	if p, ok := geo.PointFromPtrs(rec.Lat, rec.Lon); ok {
		lat = sql.NullFloat64{Float64: p.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: p.Lon, Valid: true}
	}
	var birth sql.NullInt64
	if rec.BirthDateMs != nil {
		birth = sql.NullInt64{Int64: *rec.BirthDateMs, Valid: true}
	}

	query := `INSERT INTO ` + s.table + ` (kind, id, owner_id, lat, lon, last_activity, created_at,
            birth_date, tags, nums, flags, sets, priority, area)
          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
          ON CONFLICT (kind, id) DO UPDATE
            SET owner_id = EXCLUDED.owner_id,
                lat = EXCLUDED.lat,
                lon = EXCLUDED.lon,
                last_activity = GREATEST(` + s.table + `.last_activity, EXCLUDED.last_activity),
                created_at = EXCLUDED.created_at,
                birth_date = EXCLUDED.birth_date,
                tags = EXCLUDED.tags,
                nums = EXCLUDED.nums,
                flags = EXCLUDED.flags,
                sets = EXCLUDED.sets,
                priority = EXCLUDED.priority,
                area = EXCLUDED.area`
	_, err = s.db.ExecContext(ctx, query,
		rec.Kind, rec.ID, rec.OwnerID, lat, lon, rec.LastActivityMs, rec.CreatedMs,
		birth, attrs.tags, attrs.nums, attrs.flags, attrs.sets, rec.Priority, rec.Area,
	)
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: err}
	}
	return nil
}

// Touch sets last_activity = GREATEST(last_activity, at).
func (s *Store) Touch(ctx context.Context, kind, id string, at time.Time) error {
	query := `UPDATE ` + s.table + ` SET last_activity = GREATEST(last_activity, $3) WHERE kind = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, query, kind, id, at.UnixMilli())
	if err != nil {
		return &db.Error{Op: db.OpTouch, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.Error{Op: db.OpTouch, Err: err}
	}
	if n == 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// Get reads one row.
func (s *Store) Get(ctx context.Context, kind, id string) (*db.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + s.table + ` WHERE kind = $1 AND id = $2`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, kind, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return &rec, nil
}

// Fetch runs one bounded SELECT.
func (s *Store) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	if q.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", db.ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", db.ErrInvalidQuery)
	}

	query, args := buildFetch(s.table, q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	out := make([]db.Record, 0, q.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (db.Record, error) {
	var (
		rec                         db.Record
		lat, lon                    sql.NullFloat64
		birth                       sql.NullInt64
		area                        sql.NullString
		tags, nums, flags, setsJSON []byte
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &lat, &lon, &rec.LastActivityMs, &rec.CreatedMs,
		&birth, &tags, &nums, &flags, &setsJSON, &rec.Priority, &area)
	if err != nil {
		return db.Record{}, err
	}
	if lat.Valid && lon.Valid {
		rec.Lat, rec.Lon = &lat.Float64, &lon.Float64
	}
	if birth.Valid {
		rec.BirthDateMs = &birth.Int64
	}
	rec.Area = area.String
	if err := decodeAttributes(&rec, tags, nums, flags, setsJSON); err != nil {
		return db.Record{}, err
	}
	return rec, nil
}

type encodedAttributes struct {
	tags, nums, flags, sets string
}

func encodeAttributes(rec *db.Record) (encodedAttributes, error) {
	var out encodedAttributes
	var err error
	if out.tags, err = jsonObject(rec.Tags); err != nil {
		return out, fmt.Errorf("tags: %w", err)
	}
	if out.nums, err = jsonObject(rec.Numerics); err != nil {
		return out, fmt.Errorf("numerics: %w", err)
	}
	if out.flags, err = jsonObject(rec.Flags); err != nil {
		return out, fmt.Errorf("flags: %w", err)
	}
	if out.sets, err = jsonObject(rec.Sets); err != nil {
		return out, fmt.Errorf("sets: %w", err)
	}
	return out, nil
}

func jsonObject[M ~map[string]V, V any](m M) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeAttributes(rec *db.Record, tags, nums, flags, sets []byte) error {
	decode := func(raw []byte, dst any) error {
		if len(raw) == 0 || string(raw) == "{}" {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
	if err := decode(tags, &rec.Tags); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if err := decode(nums, &rec.Numerics); err != nil {
		return fmt.Errorf("nums: %w", err)
	}
	if err := decode(flags, &rec.Flags); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	if err := decode(sets, &rec.Sets); err != nil {
		return fmt.Errorf("sets: %w", err)
	}
	return nil
}
