package postgres

import (
	"reflect"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/kailas-cloud/scout/internal/db"
	"github.com/kailas-cloud/scout/internal/domain/discovery/filter"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

func f64(v float64) *float64 { return &v }

func TestBuildFetch_Recency(t *testing.T) {
	gender, _ := filter.NewIn(filter.Tag, "gender", []string{"female"})
	langs, _ := filter.NewIn(filter.Set, "languages", []string{"en", "de"})
	blocked, _ := filter.NewMatch(filter.Flag, "blocked", filter.FlagOn)
	owner, _ := filter.NewMatch(filter.Field, filter.FieldOwnerID, "u1")
	expr, err := filter.NewExpression(
		[]filter.Condition{gender, langs},
		[]filter.Condition{blocked, owner},
		&filter.Keyset{LastActivityMs: 500, ID: "c9"},
	)
	if err != nil {
		t.Fatal(err)
	}

	query, args := buildFetch("candidates", &db.FetchQuery{Kind: "profile", Filters: expr, Limit: 21})

	wantWhere := "WHERE kind = $1" +
		" AND tags->>($2::text) = ANY($3)" +
		" AND sets->($4::text) ?| $5" +
		" AND NOT COALESCE((COALESCE((flags->>($6::text))::boolean, FALSE)), FALSE)" +
		" AND NOT COALESCE((owner_id = ANY($7)), FALSE)" +
		" AND (last_activity, id) < ($8, $9)"
	if !strings.Contains(query, wantWhere) {
		t.Errorf("query missing where clause:\n%s", query)
	}
	if !strings.Contains(query, "ORDER BY last_activity DESC, id DESC\nLIMIT $10") {
		t.Errorf("unexpected order/limit:\n%s", query)
	}

	want := []any{
		"profile",
		"gender", pq.Array([]string{"female"}),
		"languages", pq.Array([]string{"en", "de"}),
		"blocked",
		pq.Array([]string{"u1"}),
		int64(500), "c9",
		21,
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %#v\nwant %#v", args, want)
	}
}

func TestBuildFetch_Nearest(t *testing.T) {
	query, args := buildFetch("candidates", &db.FetchQuery{
		Kind:  "live",
		Order: filter.Ordering{Near: &geo.Point{Lat: 52.5, Lon: 13.4}},
		Limit: 100,
	})
	if !strings.Contains(query, "ORDER BY (lat IS NULL OR lon IS NULL), 2 * 6371 * asin(") {
		t.Errorf("expected haversine order:\n%s", query)
	}
	if !strings.Contains(query, ", last_activity DESC, id DESC\nLIMIT $4") {
		t.Errorf("expected recency tie-break:\n%s", query)
	}
	if len(args) != 4 || args[1] != 52.5 || args[2] != 13.4 {
		t.Errorf("args = %v", args)
	}
}

func TestBuildFetch_PriorityDistanceKeyset(t *testing.T) {
	order := filter.Ordering{PriorityFirst: true, Near: &geo.Point{Lat: 52.5, Lon: 13.4}}
	expr, err := filter.NewExpression(nil, nil, &filter.Keyset{
		Order: order, Priority: true, DistanceKm: f64(3), LastActivityMs: 500, ID: "c9",
	})
	if err != nil {
		t.Fatal(err)
	}

	query, args := buildFetch("candidates", &db.FetchQuery{Kind: "live", Filters: expr, Order: order, Limit: 10})

	for _, frag := range []string{
		"WHERE kind = $1 AND (NOT priority OR ((lat IS NULL OR lon IS NULL) OR 2 * 6371 * asin(",
		") > $7 OR (2 * 6371 * asin(",
		") >= $6 AND (last_activity, id) < ($2, $3)))",
		"ORDER BY priority DESC, (lat IS NULL OR lon IS NULL), 2 * 6371 * asin(",
		"last_activity DESC, id DESC\nLIMIT $8",
	} {
		if !strings.Contains(query, frag) {
			t.Errorf("query missing %q:\n%s", frag, query)
		}
	}
	if len(args) != 8 {
		t.Fatalf("args = %v", args)
	}
	if lo, hi := args[5].(float64), args[6].(float64); lo >= 3 || hi <= 3 {
		t.Errorf("tolerance band = [%v, %v]", lo, hi)
	}
}

func TestBuildFetch_UnpositionedKeyset(t *testing.T) {
	order := filter.Ordering{Near: &geo.Point{Lat: 1, Lon: 2}}
	expr, _ := filter.NewExpression(nil, nil, &filter.Keyset{Order: order, LastActivityMs: 7, ID: "x"})

	query, _ := buildFetch("candidates", &db.FetchQuery{Kind: "live", Filters: expr, Order: order, Limit: 10})
	if !strings.Contains(query, "AND ((lat IS NULL OR lon IS NULL) AND (last_activity, id) < ($2, $3))") {
		t.Errorf("unpositioned keyset must stay among unpositioned rows:\n%s", query)
	}
}

func TestCondition_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		target filter.Target
		key    string
		r      func() filter.Range
		want   string
	}{
		{
			name: "numeric attribute", target: filter.Numeric, key: "height_cm",
			r:    func() filter.Range { r, _ := filter.NewRangeFilter(nil, f64(150), nil, f64(190)); return r },
			want: "(nums->>($1::text))::double precision >= $2 AND (nums->>($1::text))::double precision <= $3",
		},
		{
			name: "birth date column", target: filter.Field, key: filter.FieldBirthDate,
			r:    func() filter.Range { r, _ := filter.NewRangeFilter(f64(1), nil, nil, nil); return r },
			want: "birth_date > $1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := filter.NewRange(tt.target, tt.key, tt.r())
			if err != nil {
				t.Fatal(err)
			}
			b := &queryBuilder{}
			if got := b.condition(c); got != tt.want {
				t.Fatalf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestCondition_UnknownField(t *testing.T) {
	c, _ := filter.NewMatch(filter.Field, "password; DROP TABLE x", "v")
	b := &queryBuilder{}
	if got := b.condition(c); got != "FALSE" {
		t.Fatalf("got %q", got)
	}
}

func TestNewStore_TableName(t *testing.T) {
	if _, err := newStore(nil, "bad-name"); err == nil {
		t.Fatal("expected error for invalid table name")
	}
	s, err := newStore(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.table != DefaultTable {
		t.Fatalf("table = %s", s.table)
	}
}

func TestAttributesRoundTrip(t *testing.T) {
	rec := &db.Record{
		Tags:  map[string]string{"gender": "male"},
		Flags: map[string]bool{"verified": true},
		Sets:  map[string][]string{"languages": {"en"}},
	}
	enc, err := encodeAttributes(rec)
	if err != nil {
		t.Fatal(err)
	}
	if enc.nums != "{}" {
		t.Errorf("empty map must encode as {}, got %s", enc.nums)
	}

	var got db.Record
	if err := decodeAttributes(&got, []byte(enc.tags), []byte(enc.nums), []byte(enc.flags), []byte(enc.sets)); err != nil {
		t.Fatal(err)
	}
	if got.Tags["gender"] != "male" || !got.Flags["verified"] || got.Sets["languages"][0] != "en" || got.Numerics != nil {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("candidates")
	if !strings.Contains(stmts[0], `id            TEXT COLLATE "C" NOT NULL`) {
		t.Error("id must use C collation for byte-order keyset")
	}
	if !strings.Contains(stmts[0], "PRIMARY KEY (kind, id)") {
		t.Error("missing primary key")
	}
}
