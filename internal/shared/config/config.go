package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Store       StoreConfig       `mapstructure:"store"`
	KurrentDB   KurrentDBConfig   `mapstructure:"kurrentdb"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Env  string `mapstructure:"env" validate:"oneof=development test production"`
}

type DatabaseConfig struct {
	// URL, when set, replaces the individual connection fields
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool tuning
	MaxConns          int32         `mapstructure:"max_conns" validate:"min=1"`
	MinConns          int32         `mapstructure:"min_conns" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// StoreConfig selects the engine's storage backend.
type StoreConfig struct {
	// Driver: "memory" or "postgres"
	Driver string `mapstructure:"driver" validate:"oneof=memory postgres"`
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Enabled publishes domain events to KurrentDB instead of the in-process bus
	Enabled bool `mapstructure:"enabled"`
	// Host is the KurrentDB server hostname
	Host string `mapstructure:"host"`
	// Port is the gRPC/HTTP port (default 2113)
	Port int `mapstructure:"port"`
	// Insecure disables TLS (for development)
	Insecure bool `mapstructure:"insecure"`
	// Username for authentication (optional)
	Username string `mapstructure:"username"`
	// Password for authentication (optional)
	Password string `mapstructure:"password"`
	// StreamPrefix is prepended to every stream name
	StreamPrefix string `mapstructure:"stream_prefix"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  string        `mapstructure:"audience"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"min=0"`
}

// EngineConfig tunes engine behaviour left open by the domain rules.
type EngineConfig struct {
	// StrictReferences rejects case assignment to principals without an
	// operator profile
	StrictReferences bool `mapstructure:"strict_references"`
}

type IdempotencyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend: "memory" or "redis"
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"rps" validate:"min=0"`
	Burst             int  `mapstructure:"burst" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

const defaultJWTSecret = "dev-secret-change-in-prod"

// envBindings keeps the flat environment variable names used by deployments
var envBindings = map[string]string{
	"server.port":                  "SERVER_PORT",
	"server.env":                   "ENV",
	"database.host":                "DB_HOST",
	"database.port":                "DB_PORT",
	"database.user":                "DB_USER",
	"database.password":            "DB_PASSWORD",
	"database.name":                "DB_NAME",
	"database.sslmode":             "DB_SSLMODE",
	"database.url":                 "DATABASE_URL",
	"database.max_conns":           "DB_MAX_CONNS",
	"database.min_conns":           "DB_MIN_CONNS",
	"database.max_conn_lifetime":   "DB_MAX_CONN_LIFETIME",
	"database.max_conn_idle_time":  "DB_MAX_CONN_IDLE_TIME",
	"database.health_check_period": "DB_HEALTH_CHECK_PERIOD",
	"store.driver":                 "STORE_DRIVER",
	"kurrentdb.enabled":            "KURRENTDB_ENABLED",
	"kurrentdb.host":               "KURRENTDB_HOST",
	"kurrentdb.port":               "KURRENTDB_PORT",
	"kurrentdb.insecure":           "KURRENTDB_INSECURE",
	"kurrentdb.username":           "KURRENTDB_USERNAME",
	"kurrentdb.password":           "KURRENTDB_PASSWORD",
	"kurrentdb.stream_prefix":      "KURRENTDB_STREAM_PREFIX",
	"auth.jwt_secret":              "JWT_SECRET",
	"auth.issuer":                  "JWT_ISSUER",
	"auth.audience":                "JWT_AUDIENCE",
	"auth.token_ttl":               "JWT_TOKEN_TTL",
	"engine.strict_references":     "ENGINE_STRICT_REFERENCES",
	"idempotency.enabled":          "IDEMPOTENCY_ENABLED",
	"idempotency.backend":          "IDEMPOTENCY_BACKEND",
	"idempotency.ttl":              "IDEMPOTENCY_TTL",
	"redis.addr":                   "REDIS_ADDR",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"ratelimit.enabled":            "RATE_LIMIT_ENABLED",
	"ratelimit.rps":                "RATE_LIMIT_RPS",
	"ratelimit.burst":              "RATE_LIMIT_BURST",
	"logging.level":                "LOG_LEVEL",
	"logging.format":               "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "casedesk")
	v.SetDefault("database.password", "casedesk")
	v.SetDefault("database.name", "casedesk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check_period", time.Minute)

	v.SetDefault("store.driver", "memory")

	v.SetDefault("kurrentdb.enabled", false)
	v.SetDefault("kurrentdb.host", "localhost")
	v.SetDefault("kurrentdb.port", 2113)
	v.SetDefault("kurrentdb.insecure", true)
	v.SetDefault("kurrentdb.stream_prefix", "casedesk")

	v.SetDefault("auth.jwt_secret", defaultJWTSecret)
	v.SetDefault("auth.issuer", "casedesk")
	v.SetDefault("auth.audience", "casedesk-api")
	v.SetDefault("auth.token_ttl", 15*time.Minute)

	v.SetDefault("engine.strict_references", false)

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.backend", "memory")
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and production-only rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.Env == "production" && c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("invalid config: JWT_SECRET must be set in production")
	}
	if c.Idempotency.Enabled && c.Idempotency.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("invalid config: REDIS_ADDR is required for the redis idempotency backend")
	}
	return nil
}
