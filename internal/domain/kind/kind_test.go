package kind

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/scout/internal/domain"
	"github.com/kailas-cloud/scout/internal/domain/derived"
)

func TestNewRegistry_Defaults(t *testing.T) {
	r, err := NewRegistry(Profile(), Live(), Kind{Name: "bare"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k, err := r.Lookup("bare")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if k.Freshness != derived.DefaultFreshness {
		t.Errorf("Freshness = %+v", k.Freshness)
	}
	if len(k.Bands.Bands) == 0 || k.DefaultSort == "" || k.GroupLabel != "area" {
		t.Errorf("defaults not applied: %+v", k)
	}
	if got := r.Names(); len(got) != 3 || got[0] != "bare" || got[2] != "profile" {
		t.Errorf("Names() = %v", got)
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r, _ := NewRegistry(Profile())
	_, err := r.Lookup("pets")
	if !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		kinds []Kind
	}{
		{"no name", []Kind{{}}},
		{"duplicate", []Kind{Profile(), Profile()}},
		{"flag both ways", []Kind{{Name: "x", Flags: []string{"blocked"}, PrivilegedFlags: []string{"blocked"}}}},
		{"bands descend", []Kind{{Name: "x", Bands: derived.DistanceBands{Bands: []derived.Band{{MaxKm: 5}, {MaxKm: 1}}}}}},
		{"freshness descend", []Kind{{Name: "x", Freshness: derived.Freshness{JustNow: 10, Active: 5, InactiveAfter: 60}}}},
		{"bad sort", []Kind{{Name: "x", DefaultSort: "random"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.kinds...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestKind_Lookups(t *testing.T) {
	k := Profile()
	if vocab, ok := k.Vocabulary("gender"); !ok || len(vocab) == 0 {
		t.Error("gender must be a known categorical")
	}
	if _, ok := k.Vocabulary("zodiac"); ok {
		t.Error("zodiac must be unknown")
	}
	if !k.HasFlag("verified") || k.HasFlag("blocked") {
		t.Error("flag lookup mismatch")
	}
	if !k.IsPrivileged("blocked") || k.IsPrivileged("verified") {
		t.Error("privileged lookup mismatch")
	}
	if !k.HasSet("languages") || !k.HasNumeric("height_cm") {
		t.Error("set/numeric lookup mismatch")
	}
	if vocab, ok := Live().Vocabulary("category"); !ok || vocab != nil {
		t.Error("open vocabulary must be known and nil")
	}
}
