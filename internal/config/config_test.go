package config

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_Drivers(t *testing.T) {
	tests := []struct {
		name    string
		db      DatabaseConfig
		wantErr string
	}{
		{"memory", DatabaseConfig{Driver: DriverMemory}, ""},
		{"redis ok", DatabaseConfig{Driver: DriverRedis, Addrs: []string{"localhost:6379"}}, ""},
		{"valkey without addrs", DatabaseConfig{Driver: DriverValkey}, "database.addrs"},
		{"mongo without uri", DatabaseConfig{Driver: DriverMongo}, "database.uri"},
		{"postgres without dsn", DatabaseConfig{Driver: DriverPostgres}, "database.dsn"},
		{"dynamodb without region", DatabaseConfig{Driver: DriverDynamoDB}, "database.region"},
		{"dynamodb ok", DatabaseConfig{Driver: DriverDynamoDB, Region: "eu-west-1"}, ""},
		{"unknown", DatabaseConfig{Driver: "cassandra"}, "unknown database.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database = tt.db
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MissingJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestValidate_KindDefaultSort(t *testing.T) {
	cfg := validConfig()
	cfg.Discovery.Kinds = map[string]KindConfig{"pets": {DefaultSort: "random"}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid default sort")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.RequestTimeoutSec != 5 {
		t.Errorf("expected RequestTimeoutSec=5, got %d", cfg.HTTP.RequestTimeoutSec)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("expected Driver=%q, got %q", DriverMemory, cfg.Database.Driver)
	}
	if cfg.Database.KeyPrefix != "scout:" {
		t.Errorf("expected KeyPrefix='scout:', got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Discovery.HardLimit != 500 {
		t.Errorf("expected HardLimit=500, got %d", cfg.Discovery.HardLimit)
	}
	if cfg.Discovery.DefaultPageSize != 20 || cfg.Discovery.MaxPageSize != 100 {
		t.Errorf("page sizes = %d/%d", cfg.Discovery.DefaultPageSize, cfg.Discovery.MaxPageSize)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("expected FailureThreshold=5, got %d", cfg.Breaker.FailureThreshold)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{Driver: DriverPostgres, KeyPrefix: "custom:"},
		Discovery: DiscoveryConfig{HardLimit: 1000, MaxPageSize: 50},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("expected Driver=postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Database.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Database.KeyPrefix)
	}
	if cfg.Discovery.HardLimit != 1000 || cfg.Discovery.MaxPageSize != 50 {
		t.Errorf("discovery overridden: %+v", cfg.Discovery)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SCOUT_TEST_PORT", "9090")

	got := string(expandEnvVars([]byte("port: ${SCOUT_TEST_PORT}\nname: ${SCOUT_TEST_UNSET:-fallback}\nempty: ${SCOUT_TEST_UNSET}")))
	want := "port: 9090\nname: fallback\nempty: "
	if got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}

func TestParse_Kinds(t *testing.T) {
	t.Setenv("SCOUT_TEST_SECRET", "s3cret")

	raw := `
http:
  port: 8080
auth:
  jwt_secret: ${SCOUT_TEST_SECRET}
discovery:
  max_page_size: 50
  kinds:
    venue:
      categorical:
        cuisine: [thai, sushi]
        district: []
      numerics: [rating]
      flags: [open_now]
      privileged_flags: [hidden]
      freshness: {just_now_min: 1, active_min: 30, inactive_after_min: 1440}
      distance_bands:
        - {max_km: 2, label: walk}
        - {max_km: 20, label: ride}
      beyond_label: trip
      default_sort: distance
`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}

	kinds := cfg.Discovery.KindList()
	if len(kinds) != 1 {
		t.Fatalf("expected one kind, got %d", len(kinds))
	}
	v := kinds[0]
	if v.Name != "venue" || v.DefaultSort != query.Distance {
		t.Errorf("kind = %+v", v)
	}
	if vocab, ok := v.Vocabulary("district"); !ok || vocab != nil {
		t.Errorf("empty vocabulary must be open, got %v ok=%v", vocab, ok)
	}
	if len(v.Bands.Bands) != 2 || v.Bands.Beyond != "trip" {
		t.Errorf("bands = %+v", v.Bands)
	}
	if _, err := kind.NewRegistry(kinds...); err != nil {
		t.Errorf("configured kinds must validate: %v", err)
	}

	l := cfg.Discovery.Limits()
	if l.MaxPageSize != 50 || l.DefaultPageSize != 20 {
		t.Errorf("limits = %+v", l)
	}
}

func TestKindList_BuiltinFallback(t *testing.T) {
	kinds := DiscoveryConfig{}.KindList()
	if len(kinds) != 2 || kinds[0].Name != "live" || kinds[1].Name != "profile" {
		t.Fatalf("fallback kinds = %v", kinds)
	}
}
