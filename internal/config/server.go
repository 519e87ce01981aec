// Package config provides configuration management for licverify.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// StoreKind selects the license store implementation.
type StoreKind string

const (
	// StoreStatic serves a fixed accept-list from memory (test mode).
	StoreStatic StoreKind = "static"
	// StoreFile reads a JSON license file on every lookup.
	StoreFile StoreKind = "file"
	// StorePostgres queries a PostgreSQL licenses table.
	StorePostgres StoreKind = "postgres"
	// StoreSQLite queries a SQLite licenses table.
	StoreSQLite StoreKind = "sqlite"
	// StoreRedis reads one Redis hash per license key.
	StoreRedis StoreKind = "redis"
)

// ValidStoreKinds returns all recognized store kinds.
func ValidStoreKinds() []StoreKind {
	return []StoreKind{StoreStatic, StoreFile, StorePostgres, StoreSQLite, StoreRedis}
}

// IsValid checks if the store kind is a recognized value.
func (k StoreKind) IsValid() bool {
	for _, valid := range ValidStoreKinds() {
		if k == valid {
			return true
		}
	}
	return false
}

// Defaults applied when neither the config file nor the environment set a value.
const (
	DefaultPort          = "3000"
	DefaultStaticKey     = "LSP-TEST-KEY"
	DefaultStaticExpiry  = "2026-12-31"
	DefaultVerifyTimeout = 5 * time.Second
	DefaultMaxBodyBytes  = 1 << 20
	DefaultDBMaxConns    = 25
	DefaultDBMinConns    = 5

	DefaultShutdownTimeout = 15 * time.Second
)

// ServerConfig holds server-level configuration. It is built once at startup
// and passed down; nothing below cmd/ reads the environment.
type ServerConfig struct {
	Environment   Environment   `yaml:"environment"`
	ListenAddr    string        `yaml:"listen_addr"`
	LogLevel      string        `yaml:"log_level"`
	Store         StoreKind     `yaml:"store"`
	DatabaseURL   string        `yaml:"database_url"`
	DBMaxConns    int           `yaml:"db_max_conns"`
	DBMinConns    int           `yaml:"db_min_conns"`
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	LicenseFile   string        `yaml:"license_file"`
	StaticKeys    []string      `yaml:"static_keys"`
	StaticExpiry  string        `yaml:"static_expiry"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"` // per-request bound on the store lookup
	CORSOrigins   []string      `yaml:"cors_origins"`   // empty allows all origins
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ShutdownDrain   time.Duration `yaml:"shutdown_drain"` // time /health reports draining before the listener closes
}

// DefaultServerConfig returns a ServerConfig with defaults for local testing.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Environment:   EnvDevelopment,
		ListenAddr:    ":" + DefaultPort,
		LogLevel:      "info",
		DBMaxConns:    DefaultDBMaxConns,
		DBMinConns:    DefaultDBMinConns,
		StaticKeys:    []string{DefaultStaticKey},
		StaticExpiry:  DefaultStaticExpiry,
		VerifyTimeout: DefaultVerifyTimeout,
		MaxBodyBytes:  DefaultMaxBodyBytes,

		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadServerConfig reads server configuration from environment variables on
// top of the defaults.
func LoadServerConfig() ServerConfig {
	cfg := DefaultServerConfig()
	applyEnv(&cfg)
	return cfg
}

// Load builds the configuration from defaults, then the YAML file at path
// (if path is non-empty), then environment variables, and validates it.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return ServerConfig{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *ServerConfig) {
	env := Environment(getEnvString("ENV", string(cfg.Environment)))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}
	cfg.Environment = env

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}

	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.Store = StoreKind(strings.ToLower(getEnvString("STORE", string(cfg.Store))))
	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = getEnvInt("DB_MIN_CONNS", cfg.DBMinConns)
	cfg.SQLitePath = getEnvString("SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisURL = getEnvString("REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = getEnvString("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.LicenseFile = getEnvString("LICENSE_FILE", cfg.LicenseFile)
	cfg.StaticKeys = getEnvList("STATIC_KEYS", cfg.StaticKeys)
	cfg.StaticExpiry = getEnvString("STATIC_EXPIRY", cfg.StaticExpiry)
	cfg.VerifyTimeout = getEnvDuration("VERIFY_TIMEOUT", cfg.VerifyTimeout)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.ShutdownDrain = getEnvDuration("SHUTDOWN_DRAIN", cfg.ShutdownDrain)

	if cfg.Store == "" {
		cfg.Store = StoreStatic
		if cfg.DatabaseURL != "" {
			cfg.Store = StorePostgres
		}
	}
}

// Validate checks that the selected store has what it needs.
func (c *ServerConfig) Validate() error {
	if !c.Store.IsValid() {
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
		if c.DBMaxConns < 1 {
			return errors.New("db_max_conns must be at least 1")
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return errors.New("db_min_conns must be between 0 and db_max_conns")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	case StoreFile:
		if c.LicenseFile == "" {
			return errors.New("LICENSE_FILE is required for the file store")
		}
	case StoreStatic:
		if len(c.StaticKeys) == 0 {
			return errors.New("at least one static key is required for the static store")
		}
	}

	if c.VerifyTimeout <= 0 {
		return errors.New("verify_timeout must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	if c.ShutdownDrain < 0 || c.ShutdownDrain >= c.ShutdownTimeout {
		return errors.New("shutdown_drain must be non-negative and shorter than shutdown_timeout")
	}
	return nil
}

// getEnvString reads a string from an environment variable, returning the default if unset.
func getEnvString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration ("5s", "1m") from an environment variable,
// returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvList reads a comma-separated list, dropping empty entries.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
