package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

func f64(v float64) *float64 { return &v }

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"Unknown Index Name", "unknown index name", true},
		{"short", "longer than input", false},
		{"", "", true},
	}
	for _, tc := range tests {
		if got := containsIgnoreCase(tc.s, tc.sub); got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- schema.go tests ---

func TestEnsureSchema_CreatesIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	err := s.EnsureSchema(context.Background(), &db.Schema{
		Kind:     "profile",
		Tags:     []string{"gender"},
		Numerics: []string{"height_cm"},
		Flags:    []string{"verified"},
		Sets:     []string{"languages"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(got, " ")
	for _, want := range []string{
		"scout:idx:profile ON HASH PREFIX 1 scout:cand:profile:",
		"last_activity NUMERIC SORTABLE",
		"tag_gender TAG CASESENSITIVE",
		"num_height_cm NUMERIC",
		"flag_verified TAG",
		"set_languages TAG SEPARATOR , CASESENSITIVE",
		"has_pos NUMERIC",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("FT.CREATE args missing %q:\n%s", want, joined)
		}
	}
}

func TestEnsureSchema_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.CREATE" })).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	if err := s.EnsureSchema(context.Background(), &db.Schema{Kind: "live"}); err != nil {
		t.Fatalf("existing index must be kept, got %v", err)
	}
}

func TestEnsureSchema_ServerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.CREATE" })).
		Return(mock.Result(mock.RedisError("ERR out of memory")))

	s := NewStoreForTest(c)
	err := s.EnsureSchema(context.Background(), &db.Schema{Kind: "live"})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestFetch_UnknownIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.AGGREGATE" })).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	_, err := s.Fetch(context.Background(), &db.FetchQuery{Kind: "ghost", Limit: 5})
	if !errors.Is(err, db.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestEnsureSchema_NoKind(t *testing.T) {
	s := NewStoreForTest(nil)
	if err := s.EnsureSchema(context.Background(), &db.Schema{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestIndexDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		def  IndexDefinition
	}{
		{"no name", IndexDefinition{Fields: []IndexField{{Name: "f"}}}},
		{"bad name", IndexDefinition{Name: "a b", Fields: []IndexField{{Name: "f"}}}},
		{"no fields", IndexDefinition{Name: "x"}},
		{"duplicate", IndexDefinition{Name: "x", Fields: []IndexField{{Name: "f"}, {Name: "f"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.def.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildFieldArgs_UnknownType(t *testing.T) {
	if _, err := buildFieldArgs(&IndexField{Name: "f", Type: IndexFieldType(99)}); err == nil {
		t.Fatal("expected error")
	}
}

// --- filter.go tests ---

func mustExpr(t *testing.T, must, mustNot []filter.Condition, after *filter.Keyset) filter.Expression {
	t.Helper()
	e, err := filter.NewExpression(must, mustNot, after)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestBuildFilter(t *testing.T) {
	in, _ := filter.NewIn(filter.Tag, "gender", []string{"female", "non-binary"})
	set, _ := filter.NewIn(filter.Set, "languages", []string{"en"})
	flag, _ := filter.NewMatch(filter.Flag, "blocked", filter.FlagOn)
	owner, _ := filter.NewMatch(filter.Field, filter.FieldOwnerID, "u-1")
	r, _ := filter.NewRangeFilter(f64(946684800000), nil, nil, f64(1262304000000))
	birth, _ := filter.NewRange(filter.Field, filter.FieldBirthDate, r)

	got := buildFilter(mustExpr(t,
		[]filter.Condition{in, set, birth},
		[]filter.Condition{flag, owner},
		&filter.Keyset{LastActivityMs: 1700000000000, ID: "x"},
	))
	want := `@tag_gender:{female | non\-binary} @set_languages:{en} ` +
		`@birth_date:[(946684800000 1262304000000] -@flag_blocked:{1} -@owner_id:{u\-1} ` +
		`@last_activity:[-inf 1700000000000]`
	if got != want {
		t.Fatalf("buildFilter =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildFilter_Empty(t *testing.T) {
	if got := buildFilter(filter.Expression{}); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildNumericFilter_Bounds(t *testing.T) {
	tests := []struct {
		name             string
		gt, gte, lt, lte *float64
		want             string
	}{
		{"gte only", nil, f64(1.5), nil, nil, "@n:[1.5 +inf]"},
		{"lt only", nil, nil, f64(10), nil, "@n:[-inf (10]"},
		{"gt lte", f64(0), nil, nil, f64(2), "@n:[(0 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := filter.NewRangeFilter(tt.gt, tt.gte, tt.lt, tt.lte)
			if got := buildNumericFilter("n", r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// --- candidates.go tests ---

func TestBuildAggregateArgs_Recency(t *testing.T) {
	args := buildAggregateArgs("idx", &db.FetchQuery{Kind: "profile", Limit: 51})
	joined := strings.Join(args, " ")
	want := "idx * LOAD * SORTBY 4 @last_activity DESC @id DESC MAX 51 LIMIT 0 51 DIALECT 2"
	if joined != want {
		t.Fatalf("args = %s", joined)
	}
}

func TestBuildAggregateArgs_RecencyKeyset(t *testing.T) {
	k := &filter.Keyset{LastActivityMs: 1700, ID: `a"b`}
	args := buildAggregateArgs("idx", &db.FetchQuery{Kind: "profile", Filters: mustExpr(t, nil, nil, k), Limit: 3})
	if args[1] != "@last_activity:[-inf 1700]" {
		t.Errorf("query = %s", args[1])
	}
	want := `(@last_activity < 1700 || (@last_activity == 1700 && @id < "a\"b"))`
	if got := argAfter(args, "FILTER"); got != want {
		t.Fatalf("FILTER = %s\nwant     %s", got, want)
	}
}

func TestBuildAggregateArgs_DistanceWithoutRadiusKeepsUnpositioned(t *testing.T) {
	owner, _ := filter.NewMatch(filter.Field, filter.FieldOwnerID, "u1")
	args := buildAggregateArgs("idx", &db.FetchQuery{
		Kind:    "profile",
		Filters: mustExpr(t, nil, []filter.Condition{owner}, nil),
		Order:   filter.Ordering{Near: &geo.Point{Lat: 10, Lon: 20}},
		Limit:   200,
	})
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "KNN") {
		t.Fatalf("distance order must not cap the scan at the k nearest positioned rows: %s", joined)
	}
	if args[1] != "-@owner_id:{u1}" {
		t.Errorf("query = %s", args[1])
	}
	if !strings.Contains(argAfter(args, "APPLY"), "(@ecef_x - ") {
		t.Errorf("APPLY = %s", argAfter(args, "APPLY"))
	}
	if !strings.Contains(joined, "AS _dist SORTBY 8 @has_pos DESC @_dist ASC @last_activity DESC @id DESC MAX 200") {
		t.Errorf("unpositioned rows must sort after positioned ones: %s", joined)
	}
}

func TestBuildAggregateArgs_PriorityDistanceKeyset(t *testing.T) {
	order := filter.Ordering{PriorityFirst: true, Near: &geo.Point{}}
	k := &filter.Keyset{Order: order, DistanceKm: f64(2), LastActivityMs: 9, ID: "x"}
	args := buildAggregateArgs("idx", &db.FetchQuery{Kind: "live", Filters: mustExpr(t, nil, nil, k), Order: order, Limit: 5})

	if args[1] != "*" {
		t.Errorf("a ranked keyset must not narrow the index scan: %s", args[1])
	}
	lo, hi := chordBound(2-filter.DistanceToleranceKm), chordBound(2+filter.DistanceToleranceKm)
	want := `(@priority != "1" && (@has_pos == 0 || @_dist > ` + hi + ` || (@_dist >= ` + lo +
		` && (@last_activity < 9 || (@last_activity == 9 && @id < "x")))))`
	if got := argAfter(args, "FILTER"); got != want {
		t.Fatalf("FILTER = %s\nwant     %s", got, want)
	}
	if !strings.Contains(strings.Join(args, " "), "SORTBY 10 @priority DESC @has_pos DESC @_dist ASC") {
		t.Errorf("args = %v", args)
	}
}

func TestChordExpr_NegativeComponents(t *testing.T) {
	got := chordExpr(geo.Point{Lat: -90, Lon: 0})
	if !strings.Contains(got, "(@ecef_z + 1) * (@ecef_z + 1)") {
		t.Fatalf("chord = %s", got)
	}
}

func argAfter(args []string, name string) string {
	for i := range args[:len(args)-1] {
		if args[i] == name {
			return args[i+1]
		}
	}
	return ""
}

func TestFetch_DistanceOrderReturnsUnpositionedRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.AGGREGATE" && !strings.Contains(strings.Join(cmd, " "), "KNN")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisArray(
				mock.RedisString("id"), mock.RedisString("near"),
				mock.RedisString("lat"), mock.RedisString("10"),
				mock.RedisString("lon"), mock.RedisString("20"),
				mock.RedisString("_dist"), mock.RedisString("0"),
			),
			mock.RedisArray(
				mock.RedisString("id"), mock.RedisString("nowhere"),
				mock.RedisString("has_pos"), mock.RedisString("0"),
			),
		)))

	s := NewStoreForTest(c)
	recs, err := s.Fetch(context.Background(), &db.FetchQuery{
		Kind: "profile", Order: filter.Ordering{Near: &geo.Point{Lat: 10, Lon: 20}}, Limit: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 || recs[1].ID != "nowhere" || recs[1].Lat != nil {
		t.Fatalf("records = %+v", recs)
	}
}

func TestFetch_ParsesRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.AGGREGATE" && cmd[1] == "scout:idx:profile"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisArray(
				mock.RedisString("id"), mock.RedisString("c1"),
				mock.RedisString("owner_id"), mock.RedisString("u1"),
				mock.RedisString("kind"), mock.RedisString("profile"),
				mock.RedisString("last_activity"), mock.RedisString("1700000000000"),
				mock.RedisString("birth_date"), mock.RedisString("946684800000"),
				mock.RedisString("lat"), mock.RedisString("55.75"),
				mock.RedisString("lon"), mock.RedisString("37.61"),
				mock.RedisString("priority"), mock.RedisString("1"),
				mock.RedisString("area"), mock.RedisString("center"),
				mock.RedisString("tag_gender"), mock.RedisString("female"),
				mock.RedisString("num_height_cm"), mock.RedisString("170"),
				mock.RedisString("flag_verified"), mock.RedisString("1"),
				mock.RedisString("set_languages"), mock.RedisString("en,de"),
			),
		)))

	s := NewStoreForTest(c)
	recs, err := s.Fetch(context.Background(), &db.FetchQuery{Kind: "profile", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.ID != "c1" || r.OwnerID != "u1" || r.LastActivityMs != 1700000000000 || !r.Priority {
		t.Errorf("record = %+v", r)
	}
	if r.BirthDateMs == nil || *r.BirthDateMs != 946684800000 {
		t.Errorf("birth date = %v", r.BirthDateMs)
	}
	if r.Lat == nil || *r.Lat != 55.75 {
		t.Errorf("lat = %v", r.Lat)
	}
	if r.Tags["gender"] != "female" || r.Numerics["height_cm"] != 170 || !r.Flags["verified"] {
		t.Errorf("attributes = %+v %+v %+v", r.Tags, r.Numerics, r.Flags)
	}
	if len(r.Sets["languages"]) != 2 {
		t.Errorf("sets = %+v", r.Sets)
	}
}

func TestFetch_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.AGGREGATE" })).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	recs, err := s.Fetch(context.Background(), &db.FetchQuery{Kind: "profile", Limit: 10})
	if err != nil || len(recs) != 0 {
		t.Fatalf("got %v, %v", recs, err)
	}
}

func TestFetch_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.AGGREGATE" })).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.Fetch(context.Background(), &db.FetchQuery{Kind: "profile", Limit: 10})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestFetch_Validation(t *testing.T) {
	s := NewStoreForTest(nil)
	if _, err := s.Fetch(context.Background(), &db.FetchQuery{Limit: 1}); !errors.Is(err, db.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery for empty kind, got %v", err)
	}
	if _, err := s.Fetch(context.Background(), &db.FetchQuery{Kind: "k"}); !errors.Is(err, db.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery for zero limit, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "scout:cand:profile:nope")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	s := NewStoreForTest(c)
	if _, err := s.Get(context.Background(), "profile", "nope"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "scout:cand:live:s1")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"id":            mock.RedisString("s1"),
			"owner_id":      mock.RedisString("u9"),
			"last_activity": mock.RedisString("42"),
		})))

	s := NewStoreForTest(c)
	rec, err := s.Get(context.Background(), "live", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "s1" || rec.OwnerID != "u9" || rec.Kind != "live" || rec.LastActivityMs != 42 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Lat != nil {
		t.Error("missing position must stay nil")
	}
}

func TestUpsert_RunsScript(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "EVALSHA"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	err := s.Upsert(context.Background(), &db.Record{
		ID: "c1", OwnerID: "u1", Kind: "profile", LastActivityMs: 99,
		Lat: f64(1), Lon: f64(2),
		Tags: map[string]string{"gender": "male"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// EVALSHA sha numkeys key lastActivity field value ...
	if got[2] != "1" || got[3] != "scout:cand:profile:c1" || got[4] != "99" {
		t.Fatalf("script args = %v", got[:5])
	}
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "tag_gender male") || !strings.Contains(joined, "lat 1") {
		t.Errorf("missing fields in %v", got)
	}
}

func TestUpsert_RejectsSeparatorInSet(t *testing.T) {
	s := NewStoreForTest(nil)
	err := s.Upsert(context.Background(), &db.Record{
		ID: "c1", Kind: "profile",
		Sets: map[string][]string{"tags": {"a,b"}},
	})
	if !errors.Is(err, db.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestTouch(t *testing.T) {
	tests := []struct {
		name    string
		reply   int64
		wantErr error
	}{
		{"moved", 1, nil},
		{"kept", 0, nil},
		{"missing", -1, db.ErrKeyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			at := time.UnixMilli(1700000000000)
			c.EXPECT().
				Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
					return cmd[0] == "EVALSHA" && cmd[3] == "scout:cand:live:s1" && cmd[4] == "1700000000000"
				})).
				Return(mock.Result(mock.RedisInt64(tt.reply)))

			s := NewStoreForTest(c)
			err := s.Touch(context.Background(), "live", "s1", at)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHashRoundTrip_InvalidPositionDropped(t *testing.T) {
	m, err := toHash(&db.Record{ID: "c", Kind: "k", Lat: f64(95), Lon: f64(0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m[filter.FieldLat]; ok {
		t.Fatal("invalid position must not be written")
	}
	if m[fieldHasPos] != "0" || m[fieldECEFX] != "0" {
		t.Fatalf("invalid position must be stored as unpositioned: %v", m)
	}
}

func TestToHash_ECEF(t *testing.T) {
	m, err := toHash(&db.Record{ID: "c", Kind: "k", Lat: f64(0), Lon: f64(90)})
	if err != nil {
		t.Fatal(err)
	}
	if m[fieldHasPos] != "1" || m[fieldECEFZ] != "0" {
		t.Fatalf("hash = %v", m)
	}
	if y, _ := strconv.ParseFloat(m[fieldECEFY], 64); y != 1 {
		t.Fatalf("ecef_y = %s", m[fieldECEFY])
	}
}

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
