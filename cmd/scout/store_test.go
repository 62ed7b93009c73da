package main

import (
	"context"
	"slices"
	"testing"

	"github.com/kailas-cloud/scout/internal/config"
	dbMemory "github.com/kailas-cloud/scout/internal/db/memory"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

func TestSchemaFor_Profile(t *testing.T) {
	s := schemaFor(kind.Profile())

	if s.Kind != "profile" {
		t.Errorf("Kind = %q", s.Kind)
	}
	if !slices.Equal(s.Tags, []string{"direction", "gender", "seeking", "tier"}) {
		t.Errorf("Tags = %v", s.Tags)
	}
	for _, f := range []string{"verified", "online", "blocked", "inactive"} {
		if !slices.Contains(s.Flags, f) {
			t.Errorf("flag %q not indexed", f)
		}
	}
	if !slices.Equal(s.Sets, []string{"languages", "interests"}) {
		t.Errorf("Sets = %v", s.Sets)
	}
}

func TestOpenStore(t *testing.T) {
	store, err := openStore(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*dbMemory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", store)
	}

	if _, err := openStore(context.Background(), config.DatabaseConfig{Driver: "cassandra"}); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := openStore(context.Background(), config.DatabaseConfig{Driver: config.DriverPostgres}); err == nil {
		t.Error("expected error for postgres without dsn")
	}
}
