package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// upsertScript replaces the hash but keeps the larger last_activity.
// ARGV[1] is the new last_activity, the rest are field/value pairs.
var upsertScript = rueidis.NewLuaScript(`
local cur = redis.call('HGET', KEYS[1], 'last_activity')
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  redis.call('HSET', KEYS[1], 'last_activity', cur)
end
return 1
`)

// touchScript moves last_activity forward only. Returns -1 for a missing key.
var touchScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local cur = tonumber(redis.call('HGET', KEYS[1], 'last_activity') or '0')
if tonumber(ARGV[1]) > cur then
  redis.call('HSET', KEYS[1], 'last_activity', ARGV[1])
  return 1
end
return 0
`)

// Upsert writes the full candidate hash.
func (s *Store) Upsert(ctx context.Context, rec *db.Record) error {
	fields, err := toHash(rec)
	if err != nil {
		return err
	}
	args := make([]string, 0, 1+len(fields)*2)
	args = append(args, strconv.FormatInt(rec.LastActivityMs, 10))
	for k, v := range fields {
		args = append(args, k, v)
	}
	key := s.key(rec.Kind, rec.ID)
	if err := upsertScript.Exec(ctx, s.client, []string{key}, args).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// Touch moves last_activity forward.
func (s *Store) Touch(ctx context.Context, kind, id string, at time.Time) error {
	key := s.key(kind, id)
	n, err := touchScript.Exec(ctx, s.client, []string{key}, []string{strconv.FormatInt(at.UnixMilli(), 10)}).AsInt64()
	if err != nil {
		return &db.Error{Op: db.OpTouch, Err: err}
	}
	if n < 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// Get reads one candidate hash.
func (s *Store) Get(ctx context.Context, kind, id string) (*db.Record, error) {
	cmd := s.b().Hgetall().Key(s.key(kind, id)).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	if len(m) == 0 {
		return nil, db.ErrKeyNotFound
	}
	rec := fromHash(m)
	if rec.Kind == "" {
		rec.Kind = kind
	}
	return &rec, nil
}

// Fetch runs one FT.AGGREGATE. The query string narrows rows through the
// index, FILTER resumes the keyset and SORTBY applies every tier of q.Order.
func (s *Store) Fetch(ctx context.Context, q *db.FetchQuery) ([]db.Record, error) {
	if q.Kind == "" {
		return nil, fmt.Errorf("%w: kind is required", db.ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", db.ErrInvalidQuery)
	}

	args := buildAggregateArgs(s.indexName(q.Kind), q)
	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, fmt.Errorf("%w: %s", db.ErrNotConfigured, q.Kind)
		}
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}
	return parseAggregateResult(raw)
}

func buildAggregateArgs(index string, q *db.FetchQuery) []string {
	queryStr := buildFilter(q.Filters)
	if queryStr == "" {
		queryStr = "*"
	}
	limit := strconv.Itoa(q.Limit)

	args := []string{index, queryStr, "LOAD", "*"}
	if q.Order.Near != nil {
		args = append(args, "APPLY", chordExpr(*q.Order.Near), "AS", fieldDist)
	}
	if k := q.Filters.After(); k != nil {
		args = append(args, "FILTER", keysetExpr(k))
	}
	keys := sortKeys(q.Order)
	args = append(args, "SORTBY", strconv.Itoa(len(keys)))
	args = append(args, keys...)
	return append(args, "MAX", limit, "LIMIT", "0", limit, "DIALECT", "2")
}

func sortKeys(o filter.Ordering) []string {
	var keys []string
	if o.PriorityFirst {
		keys = append(keys, "@"+fieldPriority, "DESC")
	}
	if o.ByDistance() {
		keys = append(keys, "@"+fieldHasPos, "DESC", "@"+fieldDist, "ASC")
	}
	return append(keys, "@"+filter.FieldLastActivity, "DESC", "@"+filter.FieldID, "DESC")
}

// keysetExpr admits rows strictly after k. Distances compare as squared
// chords, widened by filter.DistanceToleranceKm on both sides.
func keysetExpr(k *filter.Keyset) string {
	la := "@" + filter.FieldLastActivity
	t := strconv.FormatInt(k.LastActivityMs, 10)
	expr := fmt.Sprintf("(%s < %s || (%s == %s && @%s < %s))", la, t, la, t, filter.FieldID, quoteString(k.ID))
	if k.Order.ByDistance() {
		if k.DistanceKm == nil {
			expr = fmt.Sprintf("(@%s == 0 && %s)", fieldHasPos, expr)
		} else {
			lo := chordBound(*k.DistanceKm - filter.DistanceToleranceKm)
			hi := chordBound(*k.DistanceKm + filter.DistanceToleranceKm)
			expr = fmt.Sprintf("(@%s == 0 || @%s > %s || (@%s >= %s && %s))",
				fieldHasPos, fieldDist, hi, fieldDist, lo, expr)
		}
	}
	if k.Order.PriorityFirst {
		op := "&&"
		if k.Priority {
			op = "||"
		}
		expr = fmt.Sprintf(`(@%s != "%s" %s %s)`, fieldPriority, filter.FlagOn, op, expr)
	}
	return expr
}

// chordExpr is the squared chord between the stored unit ECEF position and
// center, monotone in great-circle distance.
func chordExpr(center geo.Point) string {
	c := geo.ToECEF(center)
	parts := make([]string, len(c))
	for i, field := range []string{fieldECEFX, fieldECEFY, fieldECEFZ} {
		d := diffExpr(field, c[i])
		parts[i] = d + " * " + d
	}
	return strings.Join(parts, " + ")
}

func diffExpr(field string, v float64) string {
	if v < 0 {
		return fmt.Sprintf("(@%s + %s)", field, formatFloat(-v))
	}
	return fmt.Sprintf("(@%s - %s)", field, formatFloat(v))
}

func chordBound(km float64) string {
	c := geo.KmToL2(max(km, 0))
	return formatFloat(c * c)
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteString(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// parseAggregateResult reads [total, row1, row2, ...] where every row is a
// flat field/value array.
func parseAggregateResult(raw []rueidis.RedisMessage) ([]db.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if _, err := raw[0].AsInt64(); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	out := make([]db.Record, 0, len(raw)-1)
	for _, row := range raw[1:] {
		fields, err := row.ToArray()
		if err != nil {
			continue
		}
		rec := fromHash(parseFieldPairs(fields))
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func toHash(r *db.Record) (map[string]string, error) {
	m := map[string]string{
		filter.FieldID:           r.ID,
		filter.FieldOwnerID:      r.OwnerID,
		fieldKind:                r.Kind,
		filter.FieldLastActivity: strconv.FormatInt(r.LastActivityMs, 10),
		fieldCreated:             strconv.FormatInt(r.CreatedMs, 10),
		fieldPriority:            boolString(r.Priority),
	}
	if r.Area != "" {
		m[fieldArea] = r.Area
	}
	// Every row carries ECEF components so the distance APPLY never reads a
	// missing field. has_pos sorts unpositioned rows last.
	m[fieldHasPos] = "0"
	m[fieldECEFX], m[fieldECEFY], m[fieldECEFZ] = "0", "0", "0"
	if p, ok := geo.PointFromPtrs(r.Lat, r.Lon); ok {
		m[filter.FieldLat] = formatFloat(p.Lat)
		m[filter.FieldLon] = formatFloat(p.Lon)
		v := geo.ToECEF(p)
		m[fieldHasPos] = filter.FlagOn
		m[fieldECEFX], m[fieldECEFY], m[fieldECEFZ] = formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2])
	}
	if r.BirthDateMs != nil {
		m[filter.FieldBirthDate] = strconv.FormatInt(*r.BirthDateMs, 10)
	}
	for k, v := range r.Tags {
		m[db.Column(filter.Tag, k)] = v
	}
	for k, v := range r.Numerics {
		m[db.Column(filter.Numeric, k)] = formatFloat(v)
	}
	for k, v := range r.Flags {
		m[db.Column(filter.Flag, k)] = boolString(v)
	}
	for k, vals := range r.Sets {
		for _, v := range vals {
			if strings.Contains(v, setSeparator) {
				return nil, fmt.Errorf("%w: set %s value %q contains %q", db.ErrInvalidQuery, k, v, setSeparator)
			}
		}
		if len(vals) > 0 {
			m[db.Column(filter.Set, k)] = strings.Join(vals, setSeparator)
		}
	}
	return m, nil
}

func fromHash(m map[string]string) db.Record {
	r := db.Record{
		ID:       m[filter.FieldID],
		OwnerID:  m[filter.FieldOwnerID],
		Kind:     m[fieldKind],
		Area:     m[fieldArea],
		Priority: m[fieldPriority] == filter.FlagOn,
	}
	r.LastActivityMs, _ = strconv.ParseInt(m[filter.FieldLastActivity], 10, 64)
	r.CreatedMs, _ = strconv.ParseInt(m[fieldCreated], 10, 64)
	if v, err := strconv.ParseInt(m[filter.FieldBirthDate], 10, 64); err == nil {
		r.BirthDateMs = &v
	}
	lat, errLat := strconv.ParseFloat(m[filter.FieldLat], 64)
	lon, errLon := strconv.ParseFloat(m[filter.FieldLon], 64)
	if errLat == nil && errLon == nil {
		r.Lat, r.Lon = &lat, &lon
	}

	for k, v := range m {
		switch {
		case strings.HasPrefix(k, "tag_"):
			if r.Tags == nil {
				r.Tags = map[string]string{}
			}
			r.Tags[strings.TrimPrefix(k, "tag_")] = v
		case strings.HasPrefix(k, "num_"):
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			if r.Numerics == nil {
				r.Numerics = map[string]float64{}
			}
			r.Numerics[strings.TrimPrefix(k, "num_")] = f
		case strings.HasPrefix(k, "flag_"):
			if r.Flags == nil {
				r.Flags = map[string]bool{}
			}
			r.Flags[strings.TrimPrefix(k, "flag_")] = v == filter.FlagOn
		case strings.HasPrefix(k, "set_"):
			if r.Sets == nil {
				r.Sets = map[string][]string{}
			}
			r.Sets[strings.TrimPrefix(k, "set_")] = strings.Split(v, setSeparator)
		}
	}
	return r
}

func boolString(b bool) string {
	if b {
		return filter.FlagOn
	}
	return "0"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
