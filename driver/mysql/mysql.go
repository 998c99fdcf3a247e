// Package mysql is the MySQL backend, built on go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/driver/sqldb"
)

// DefaultPort is appended to hosts given without one.
const DefaultPort = "3306"

// Config describes a MySQL server and database.
type Config struct {
	// Host accepts "tcp://host:port", "host:port" or "host".
	// Default: 127.0.0.1:3306
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`

	// Params are passed through as DSN parameters (charset, tls, ...).
	Params map[string]string `json:"params,omitempty"`

	// Timeout bounds dialing. Zero keeps the driver default.
	Timeout time.Duration `json:"timeout"`

	// CacheSize bounds the per-connection prepared statement cache.
	CacheSize int `json:"cache_size"`
}

// Validate checks that the required fields are present.
func (c Config) Validate() error {
	if c.User == "" {
		return fmt.Errorf("mysql: user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("mysql: database is required")
	}
	if _, err := NormalizeHost(c.Host); err != nil {
		return err
	}
	return nil
}

// NormalizeHost turns the accepted host forms into "host:port".
func NormalizeHost(host string) (string, error) {
	h := strings.TrimSpace(host)
	h = strings.TrimPrefix(h, "tcp://")
	h = strings.TrimSuffix(h, "/")
	if h == "" {
		return net.JoinHostPort("127.0.0.1", DefaultPort), nil
	}
	if _, _, err := net.SplitHostPort(h); err == nil {
		return h, nil
	}
	if strings.Contains(h, "/") {
		return "", fmt.Errorf("mysql: invalid host %q", host)
	}
	return net.JoinHostPort(h, DefaultPort), nil
}

// DriverConfig builds the go-sql-driver configuration.
func (c Config) DriverConfig() (*gomysql.Config, error) {
	addr, err := NormalizeHost(c.Host)
	if err != nil {
		return nil, err
	}
	mc := gomysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = addr
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	if c.Timeout > 0 {
		mc.Timeout = c.Timeout
	}
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc, nil
}

// DSN renders the configuration as a go-sql-driver DSN.
func (c Config) DSN() (string, error) {
	mc, err := c.DriverConfig()
	if err != nil {
		return "", err
	}
	return mc.FormatDSN(), nil
}

// ConfigFromDSN parses a go-sql-driver DSN.
func ConfigFromDSN(dsn string) (Config, error) {
	mc, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return Config{}, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	return Config{
		Host:     mc.Addr,
		User:     mc.User,
		Password: mc.Passwd,
		Database: mc.DBName,
		Params:   mc.Params,
		Timeout:  mc.Timeout,
	}, nil
}

// Open creates one connection to the server.
func Open(ctx context.Context, cfg Config) (*sqldb.Conn, error) {
	mc, err := cfg.DriverConfig()
	if err != nil {
		return nil, err
	}
	connector, err := gomysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	conn, err := sqldb.Open(ctx, sql.OpenDB(connector), sqldb.Options{
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return conn, nil
}

// NewFactory returns a factory producing connections to cfg.
func NewFactory(cfg Config) (driver.Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (driver.Connection, error) {
		return Open(ctx, cfg)
	}, nil
}
