package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/scout/internal/domain/derived"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/kind"
)

// Supported database drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// Config holds the scout API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds bearer token settings. Tokens are HS256 JWTs whose
// subject is the requester id and whose role claim is normal or elevated.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// RequestTimeoutSec bounds each request context; discovery aborts with 503 past it.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// DatabaseConfig holds backing store settings. Only the fields of the
// selected driver are read.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	URI              string   `yaml:"uri"`
	Name             string   `yaml:"name"`
	DSN              string   `yaml:"dsn"`
	MaxOpenConns     int      `yaml:"max_open_conns"`
	MaxIdleConns     int      `yaml:"max_idle_conns"`
	Region           string   `yaml:"region"`
	Endpoint         string   `yaml:"endpoint"`
	Table            string   `yaml:"table"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// DiscoveryConfig holds engine bounds and the per-kind definitions.
type DiscoveryConfig struct {
	HardLimit       int                   `yaml:"hard_limit"`
	FetchSlack      int                   `yaml:"fetch_slack"`
	DefaultPageSize int                   `yaml:"default_page_size"`
	MaxPageSize     int                   `yaml:"max_page_size"`
	MinRadiusKm     float64               `yaml:"min_radius_km"`
	MaxRadiusKm     float64               `yaml:"max_radius_km"`
	Kinds           map[string]KindConfig `yaml:"kinds"`
}

// KindConfig describes one candidate kind.
type KindConfig struct {
	// Categorical maps attribute to its vocabulary; an empty list accepts any value.
	Categorical     map[string][]string `yaml:"categorical"`
	Numerics        []string            `yaml:"numerics"`
	Flags           []string            `yaml:"flags"`
	PrivilegedFlags []string            `yaml:"privileged_flags"`
	Sets            []string            `yaml:"sets"`
	HasBirthDate    bool                `yaml:"has_birth_date"`
	Freshness       FreshnessConfig     `yaml:"freshness"`
	DistanceBands   []BandConfig        `yaml:"distance_bands"`
	BeyondLabel     string              `yaml:"beyond_label"`
	DefaultSort     string              `yaml:"default_sort"`
	GroupLabel      string              `yaml:"group_label"`
}

// FreshnessConfig holds freshness thresholds in minutes.
type FreshnessConfig struct {
	JustNowMin       float64 `yaml:"just_now_min"`
	ActiveMin        float64 `yaml:"active_min"`
	InactiveAfterMin float64 `yaml:"inactive_after_min"`
}

// BandConfig is one distance label band.
type BandConfig struct {
	MaxKm float64 `yaml:"max_km"`
	Label string  `yaml:"label"`
}

// BreakerConfig tunes the store circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold"`
	MaxRequests      uint32 `yaml:"max_requests"`
	IntervalSec      int    `yaml:"interval_sec"`
	TimeoutSec       int    `yaml:"timeout_sec"`
}

// RateLimitConfig holds per-IP request limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Limits returns the query bounds shared by every kind.
func (d DiscoveryConfig) Limits() query.Limits {
	return query.Limits{
		DefaultPageSize: d.DefaultPageSize,
		MaxPageSize:     d.MaxPageSize,
		MinRadiusKm:     d.MinRadiusKm,
		MaxRadiusKm:     d.MaxRadiusKm,
	}
}

// KindList converts configured kinds, sorted by name. With no kinds
// configured the built-in profile and live kinds are served.
func (d DiscoveryConfig) KindList() []kind.Kind {
	if len(d.Kinds) == 0 {
		return []kind.Kind{kind.Live(), kind.Profile()}
	}
	names := make([]string, 0, len(d.Kinds))
	for name := range d.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]kind.Kind, 0, len(names))
	for _, name := range names {
		out = append(out, d.Kinds[name].toKind(name))
	}
	return out
}

func (k KindConfig) toKind(name string) kind.Kind {
	var categorical map[string][]string
	if len(k.Categorical) > 0 {
		categorical = make(map[string][]string, len(k.Categorical))
		for attr, vocab := range k.Categorical {
			if len(vocab) == 0 {
				vocab = nil
			}
			categorical[attr] = vocab
		}
	}
	var bands derived.DistanceBands
	for _, b := range k.DistanceBands {
		bands.Bands = append(bands.Bands, derived.Band{MaxKm: b.MaxKm, Label: b.Label})
	}
	if len(bands.Bands) > 0 {
		bands.Beyond = k.BeyondLabel
	}
	return kind.Kind{
		Name:            name,
		Categorical:     categorical,
		Numerics:        k.Numerics,
		Flags:           k.Flags,
		PrivilegedFlags: k.PrivilegedFlags,
		Sets:            k.Sets,
		HasBirthDate:    k.HasBirthDate,
		Freshness: derived.Freshness{
			JustNow:       k.Freshness.JustNowMin,
			Active:        k.Freshness.ActiveMin,
			InactiveAfter: k.Freshness.InactiveAfterMin,
		},
		Bands:       bands,
		DefaultSort: query.SortMode(k.DefaultSort),
		GroupLabel:  k.GroupLabel,
	}
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands environment variables, decodes, defaults and validates raw YAML.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.RequestTimeoutSec <= 0 {
		c.HTTP.RequestTimeoutSec = 5
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMemory
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "scout:"
	}
	if c.Database.Name == "" {
		c.Database.Name = "scout"
	}
	if c.Discovery.HardLimit <= 0 {
		c.Discovery.HardLimit = 500
	}
	if c.Discovery.FetchSlack <= 0 {
		c.Discovery.FetchSlack = 50
	}
	if c.Discovery.DefaultPageSize <= 0 {
		c.Discovery.DefaultPageSize = 20
	}
	if c.Discovery.MaxPageSize <= 0 {
		c.Discovery.MaxPageSize = 100
	}
	if c.Discovery.MinRadiusKm <= 0 {
		c.Discovery.MinRadiusKm = 1
	}
	if c.Discovery.MaxRadiusKm <= 0 {
		c.Discovery.MaxRadiusKm = 500
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 1
	}
	if c.Breaker.IntervalSec <= 0 {
		c.Breaker.IntervalSec = 60
	}
	if c.Breaker.TimeoutSec <= 0 {
		c.Breaker.TimeoutSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Discovery.DefaultPageSize > c.Discovery.MaxPageSize {
		return fmt.Errorf("discovery.default_page_size (%d) exceeds max_page_size (%d)",
			c.Discovery.DefaultPageSize, c.Discovery.MaxPageSize)
	}
	if c.Discovery.MinRadiusKm > c.Discovery.MaxRadiusKm {
		return fmt.Errorf("discovery.min_radius_km must not exceed max_radius_km")
	}
	for name, k := range c.Discovery.Kinds {
		switch k.DefaultSort {
		case "", "mixed", "distance", "recency":
			// ok
		default:
			return fmt.Errorf(
				"discovery.kinds.%s.default_sort must be \"mixed\", \"distance\" or \"recency\", got %q",
				name, k.DefaultSort,
			)
		}
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverMemory:
		return nil
	case DriverRedis, DriverValkey:
		if len(d.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", d.Driver)
		}
	case DriverMongo:
		if d.URI == "" {
			return fmt.Errorf("database.uri is required for driver %q", d.Driver)
		}
	case DriverPostgres:
		if d.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", d.Driver)
		}
	case DriverDynamoDB:
		if d.Region == "" {
			return fmt.Errorf("database.region is required for driver %q", d.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", d.Driver)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
