package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration errors. They are fatal at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

// Database kinds accepted in database.type.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// Default values used when no config file is present.
const (
	defaultServerHost      = "localhost"
	defaultServerPort      = 3001
	defaultSQLitePath      = "../../data/database/opsimate.db"
	defaultPrivateKeysPath = "../../data/private-keys"
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresDB      = "opsimate"
	defaultPostgresUser    = "opsimate"
	defaultPostgresPass    = "opsimate_password"
	defaultAccessTokenTTL  = 60
)

// Config is the root configuration structure for OpsiMate Core.
// It is loaded once at startup and never mutated afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Security SecurityConfig `yaml:"security"`
	VM       *VMConfig      `yaml:"vm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains the HTTP listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the database backend.
// Only the block matching Type is populated.
type DatabaseConfig struct {
	Type     string          `yaml:"type"`
	Path     string          `yaml:"path,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig contains client-server connection parameters.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SSLMode is passed to the driver unchanged. Empty means "disable".
	SSLMode string `yaml:"ssl_mode,omitempty"`
}

// SecurityConfig contains key storage and API token settings.
type SecurityConfig struct {
	PrivateKeysPath string `yaml:"private_keys_path"`

	// JWTSecret signs API access tokens. When empty the server generates
	// a per-process secret, so tokens do not survive a restart.
	JWTSecret string `yaml:"jwt_secret"`

	// AccessTokenTTL is the access token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// VMConfig contains settings for commands executed on managed hosts.
type VMConfig struct {
	TryWithSudo bool `yaml:"try_with_sudo"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file.
//
// When path is empty or nothing exists at path, Load returns Default()
// and never fails. A path naming a directory or other non-regular file is
// an error. Otherwise the file is parsed and validated; any missing
// required field yields an error wrapping ErrInvalidConfig.
//
// Unlike the defaults path, environment variables do not override values
// read from a file, except for the optional vm section and the
// OPSIMATE_LOG_LEVEL / OPSIMATE_JWT_SECRET overrides.
func Load(path string) (*Config, error) {
	if !fileExists(path) {
		return Default(), nil
	}
	if info, err := os.Stat(path); err == nil && !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalidConfig, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default synthesises a configuration from environment variables alone.
// No disk I/O is performed.
func Default() *Config {
	dbType := os.Getenv("DATABASE_TYPE")
	if dbType == "" {
		dbType = DatabaseSQLite
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: defaultServerHost,
			Port: defaultServerPort,
		},
		Database: DatabaseConfig{
			Type: dbType,
		},
		Security: SecurityConfig{
			PrivateKeysPath: defaultPrivateKeysPath,
		},
		VM: vmFromEnv(),
	}

	if dbType == DatabasePostgres {
		cfg.Database.Postgres = &PostgresConfig{
			Host:     envOr("POSTGRES_HOST", defaultPostgresHost),
			Port:     envInt("POSTGRES_PORT", defaultPostgresPort),
			Database: envOr("POSTGRES_DB", defaultPostgresDB),
			User:     envOr("POSTGRES_USER", defaultPostgresUser),
			Password: envOr("POSTGRES_PASSWORD", defaultPostgresPass),
		}
	} else {
		cfg.Database.Path = envOr("DATABASE_PATH", defaultSQLitePath)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg
}

// Validate checks that every field required by the selected database
// kind is present. All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port == 0 {
		errs = append(errs, "server.port is required")
	} else if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch c.Database.kind() {
	case DatabaseSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	case DatabasePostgres:
		if c.Database.Postgres == nil {
			errs = append(errs, "database.postgres is required for postgres")
		}
	}

	if c.Security.PrivateKeysPath == "" {
		errs = append(errs, "security.private_keys_path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ServerAddress returns the host:port the HTTP server listens on.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// AccessTokenTTL returns the API access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.AccessTokenTTL) * time.Minute
}

// TryWithSudo reports the vm.try_with_sudo flag.
func (c *Config) TryWithSudo() bool {
	return c.VM != nil && c.VM.TryWithSudo
}

// kind returns the declared database kind, treating empty as sqlite.
func (d DatabaseConfig) kind() string {
	if d.Type == "" {
		return DatabaseSQLite
	}
	return d.Type
}

// applyDefaults fills optional fields left empty by the file.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = DatabaseSQLite
	}
	if pg := cfg.Database.Postgres; pg != nil && pg.Port == 0 {
		pg.Port = defaultPostgresPort
	}
	if cfg.VM == nil {
		cfg.VM = vmFromEnv()
	}
	if cfg.Security.AccessTokenTTL <= 0 {
		cfg.Security.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// applyEnvOverrides applies the overrides honoured on every load path.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPSIMATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPSIMATE_JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

// vmFromEnv builds the vm section. Sudo is enabled unless
// VM_TRY_WITH_SUDO is exactly "false".
func vmFromEnv() *VMConfig {
	return &VMConfig{TryWithSudo: os.Getenv("VM_TRY_WITH_SUDO") != "false"}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
