package helper

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	database "github.com/yishak-cs/stylematch/internal/database"
	"github.com/yishak-cs/stylematch/internal/recommend"
)

// ConfigPathEnvVar points at an optional YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	Neo4j     database.Config `koanf:"neo4j"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	SQLite    SQLiteConfig    `koanf:"sqlite"`
	Redis     RedisConfig     `koanf:"redis"`
	Recommend RecommendConfig `koanf:"recommend"`
	Seed      SeedConfig      `koanf:"seed"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Mode            string        `koanf:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       RateLimit     `koanf:"rate_limit"`
}

// RateLimit throttles the scoring routes per client. Zero requests disables it.
type RateLimit struct {
	Requests int           `koanf:"requests" validate:"gte=0"`
	Window   time.Duration `koanf:"window" validate:"gt=0"`
}

type LogConfig struct {
	Mode     string `koanf:"mode" validate:"oneof=dev prod"`
	Level    string `koanf:"level" validate:"oneof=debug info warn error"`
	Redact   bool   `koanf:"redact"`
	HashSalt string `koanf:"hash_salt"`
}

type StoreConfig struct {
	Backend string        `koanf:"backend" validate:"oneof=neo4j postgres sqlite"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	Breaker BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

type PostgresConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db" validate:"gte=0"`
	LockTTL  time.Duration `koanf:"lock_ttl" validate:"gt=0"`
}

type RecommendConfig struct {
	TopK           int               `koanf:"top_k" validate:"gte=1"`
	MaxK           int               `koanf:"max_k" validate:"gtefield=TopK"`
	VocabularyFile string            `koanf:"vocabulary_file"`
	Weights        recommend.Weights `koanf:"weights"`
}

type SeedConfig struct {
	Enabled bool   `koanf:"enabled"`
	Source  string `koanf:"source"`
	Clear   bool   `koanf:"clear"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       RateLimit{Requests: 30, Window: time.Minute},
		},
		Log: LogConfig{Mode: "prod", Level: "info", Redact: true},
		Store: StoreConfig{
			Backend: "neo4j",
			Timeout: 5 * time.Second,
			Breaker: BreakerConfig{Enabled: true, FailureThreshold: 5, OpenTimeout: 30 * time.Second},
		},
		Neo4j: database.Config{
			Username:       "neo4j",
			Database:       "neo4j",
			MaxPoolSize:    50,
			ConnectTimeout: 5 * time.Second,
		},
		SQLite: SQLiteConfig{Path: "stylematch.db"},
		Redis:  RedisConfig{LockTTL: 30 * time.Second},
		Recommend: RecommendConfig{
			TopK:    20,
			MaxK:    100,
			Weights: recommend.DefaultWeights(),
		},
		Seed: SeedConfig{Enabled: false, Source: "./data"},
	}
}

// LoadConfig layers defaults, an optional YAML file and environment
// variables, in increasing priority, and validates the result.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitCommaList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the backend-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "neo4j":
		if c.Neo4j.URI == "" {
			return errors.New("neo4j.uri (NEO4J_URI) is required for the neo4j backend")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn (POSTGRES_DSN) is required for the postgres backend")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path (SQLITE_PATH) is required for the sqlite backend")
		}
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings lists the environment variables read into the config. Unknown
// variables are ignored.
var envMappings = map[string]string{
	"app_port":                  "server.port",
	"server_port":               "server.port",
	"gin_mode":                  "server.mode",
	"server_shutdown_timeout":   "server.shutdown_timeout",
	"cors_origins":              "server.cors_origins",
	"rate_limit_requests":       "server.rate_limit.requests",
	"rate_limit_window":         "server.rate_limit.window",
	"log_mode":                  "log.mode",
	"log_level":                 "log.level",
	"log_redaction_enabled":     "log.redact",
	"log_hash_salt":             "log.hash_salt",
	"store_backend":             "store.backend",
	"store_timeout":             "store.timeout",
	"store_breaker_enabled":     "store.breaker.enabled",
	"store_breaker_failures":    "store.breaker.failure_threshold",
	"store_breaker_open":        "store.breaker.open_timeout",
	"neo4j_uri":                 "neo4j.uri",
	"neo4j_username":            "neo4j.username",
	"neo4j_password":            "neo4j.password",
	"neo4j_database":            "neo4j.database",
	"neo4j_max_pool_size":       "neo4j.max_pool_size",
	"neo4j_connect_timeout":     "neo4j.connect_timeout",
	"postgres_dsn":              "postgres.dsn",
	"database_url":              "postgres.dsn",
	"postgres_max_open_conns":   "postgres.max_open_conns",
	"sqlite_path":               "sqlite.path",
	"redis_addr":                "redis.addr",
	"redis_password":            "redis.password",
	"redis_db":                  "redis.db",
	"redis_lock_ttl":            "redis.lock_ttl",
	"recommend_top_k":           "recommend.top_k",
	"recommend_max_k":           "recommend.max_k",
	"recommend_vocabulary":      "recommend.vocabulary_file",
	"recommend_weight_style":    "recommend.weights.style",
	"recommend_weight_color":    "recommend.weights.color",
	"recommend_weight_season":   "recommend.weights.season",
	"recommend_weight_occasion": "recommend.weights.occasion",
	"recommend_weight_fit":      "recommend.weights.fit",
	"recommend_weight_fabric":   "recommend.weights.fabric",
	"seed_enabled":              "seed.enabled",
	"seed_source":               "seed.source",
	"seed_clear":                "seed.clear",
}

// envTransformFunc maps environment variable names to koanf paths, e.g.
// NEO4J_URI -> neo4j.uri. Unmapped keys return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func splitCommaList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(path, parts); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}
