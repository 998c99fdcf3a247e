package client

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/driver/mysql"
	"github.com/dan-strohschein/sqlkit/driver/postgres"
	"github.com/dan-strohschein/sqlkit/driver/sqlite"
)

// Engine names a supported backend.
type Engine string

const (
	EngineMySQL    Engine = "mysql"
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// ParseEngine accepts the engine names case-insensitively.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineMySQL, EngineSQLite, EnginePostgres:
		return e, nil
	default:
		return "", fmt.Errorf("unknown engine %q (use mysql, sqlite or postgres)", s)
	}
}

// Config configures a Database.
type Config struct {
	// Engine selects the backend.
	// Default: sqlite
	Engine Engine `json:"engine"`

	// MySQL is used when Engine is mysql.
	MySQL mysql.Config `json:"mysql"`

	// SQLite is used when Engine is sqlite.
	// Default: path app.db, WAL journal, NORMAL synchronous, foreign keys on
	SQLite sqlite.Config `json:"sqlite"`

	// Postgres is used when Engine is postgres.
	Postgres postgres.Config `json:"postgres"`

	// Pool bounds the connection pool.
	// Default: min 1, max 8
	Pool PoolConfig `json:"pool"`

	// LogLevel is DEBUG, INFO, WARN or ERROR.
	// Default: INFO
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Engine:   EngineSQLite,
		SQLite:   sqlite.DefaultConfig(),
		Pool:     DefaultPoolConfig(),
		LogLevel: "INFO",
	}
}

// ConfigFromEnv starts from DefaultConfig and applies SQLKIT_* environment
// variables.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("SQLKIT_ENGINE"); v != "" {
		engine, err := ParseEngine(v)
		if err != nil {
			return cfg, err
		}
		cfg.Engine = engine
	}

	cfg.MySQL.Host = getEnv("SQLKIT_MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.User = getEnv("SQLKIT_MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("SQLKIT_MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.Database = getEnv("SQLKIT_MYSQL_DATABASE", cfg.MySQL.Database)
	cfg.SQLite.Path = getEnv("SQLKIT_SQLITE_PATH", cfg.SQLite.Path)
	cfg.Postgres.DSN = getEnv("SQLKIT_POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.LogLevel = getEnv("SQLKIT_LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.Pool.Min, err = getEnvInt("SQLKIT_POOL_MIN", cfg.Pool.Min); err != nil {
		return cfg, err
	}
	if cfg.Pool.Max, err = getEnvInt("SQLKIT_POOL_MAX", cfg.Pool.Max); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the engine settings and pool bounds.
func (c Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	switch c.Engine {
	case EngineMySQL:
		return c.MySQL.Validate()
	case EngineSQLite:
		return c.SQLite.Validate()
	case EnginePostgres:
		return c.Postgres.Validate()
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
}

// Factory returns the backend factory selected by Engine.
func (c Config) Factory() (driver.Factory, error) {
	switch c.Engine {
	case EngineMySQL:
		return mysql.NewFactory(c.MySQL)
	case EngineSQLite:
		return sqlite.NewFactory(c.SQLite)
	case EnginePostgres:
		return postgres.NewFactory(c.Postgres)
	default:
		return nil, fmt.Errorf("unknown engine %q", c.Engine)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}
