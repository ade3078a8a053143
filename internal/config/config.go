// Package config handles node configuration loading, writing and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Backend names accepted by `configure`.
const (
	BackendSQLite  = "sqlite"
	BackendRedis   = "redis"
	BackendCluster = "cluster"
)

// DefaultFileName is the config file written into the user's home directory.
const DefaultFileName = ".bigchaindb"

// Defaults
const (
	DefaultServerBind           = "localhost:9984"
	DefaultSQLitePath           = "./data/bigchain.db"
	DefaultRedisAddr            = "localhost:6379"
	DefaultClusterURL           = "http://localhost:9985"
	DefaultDatabaseName         = "bigchain"
	DefaultBacklogReassignDelay = 120
	DefaultLogLevel             = "info"
)

// KeypairConfig holds the node keypair in hex. Private may be empty.
type KeypairConfig struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// DatabaseConfig selects and parameterizes the storage backend.
type DatabaseConfig struct {
	Backend string `json:"backend"`
	Name    string `json:"name"`
	// Path is used by the sqlite backend.
	Path string `json:"path,omitempty"`
	// Addr and Password are used by the redis backend.
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	// URL and EventsURL are used by the cluster backend.
	URL       string `json:"url,omitempty"`
	EventsURL string `json:"events_url,omitempty"`
}

// ServerConfig holds the node API server settings used at handoff.
type ServerConfig struct {
	Bind string `json:"bind"`
}

// Config is the full node configuration. It is constructed once by the
// command dispatcher and passed explicitly to every component; there is no
// process-wide configuration singleton.
type Config struct {
	Keypair              KeypairConfig  `json:"keypair"`
	Database             DatabaseConfig `json:"database"`
	Server               ServerConfig   `json:"server"`
	BacklogReassignDelay int            `json:"backlog_reassign_delay"`
	LogLevel             string         `json:"log_level"`
}

// Default returns the default configuration for a backend name.
func Default(backend string) (*Config, error) {
	db := DatabaseConfig{Backend: backend, Name: DefaultDatabaseName}
	switch backend {
	case BackendSQLite:
		db.Path = DefaultSQLitePath
	case BackendRedis:
		db.Addr = DefaultRedisAddr
	case BackendCluster:
		db.URL = DefaultClusterURL
	default:
		return nil, fmt.Errorf("unknown backend: %s (supported: sqlite, redis, cluster)", backend)
	}

	return &Config{
		Database:             db,
		Server:               ServerConfig{Bind: DefaultServerBind},
		BacklogReassignDelay: DefaultBacklogReassignDelay,
		LogLevel:             DefaultLogLevel,
	}, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, DefaultFileName)
}

// Load reads the config file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no configuration found at %s, run `bigchaindb configure` first", path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides config values from BIGCHAINDB_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BIGCHAINDB_KEYPAIR_PUBLIC"); v != "" {
		c.Keypair.Public = v
	}
	if v := os.Getenv("BIGCHAINDB_KEYPAIR_PRIVATE"); v != "" {
		c.Keypair.Private = v
	}
	if v := os.Getenv("BIGCHAINDB_DATABASE_BACKEND"); v != "" {
		c.Database.Backend = v
	}
	if v := os.Getenv("BIGCHAINDB_DATABASE_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("BIGCHAINDB_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("BIGCHAINDB_DATABASE_ADDR"); v != "" {
		c.Database.Addr = v
	}
	if v := os.Getenv("BIGCHAINDB_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("BIGCHAINDB_SERVER_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("BIGCHAINDB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BIGCHAINDB_BACKLOG_REASSIGN_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BacklogReassignDelay = n
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite, BackendRedis, BackendCluster:
	default:
		return fmt.Errorf("unknown backend: %s (supported: sqlite, redis, cluster)", c.Database.Backend)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Keypair.Private != "" && c.Keypair.Public == "" {
		return fmt.Errorf("config has a private key but no public key")
	}
	if c.BacklogReassignDelay <= 0 {
		return fmt.Errorf("backlog reassign delay must be positive")
	}
	return nil
}

// Write persists the config as indented JSON. A path of "-" writes to stdout.
func (c *Config) Write(path string) error {
	raw, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	raw = append(raw, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}
	return nil
}

// Redacted returns a copy with secrets masked for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Keypair.Private != "" {
		out.Keypair.Private = strings.Repeat("x", 45)
	}
	if out.Database.Password != "" {
		out.Database.Password = strings.Repeat("x", len(out.Database.Password))
	}
	return &out
}
