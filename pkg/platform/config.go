// Package platform assembles the configuration service from its
// configuration file and environment.
package platform

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/config-service/pkg/audit"
	"github.com/txn2/config-service/pkg/cache"
	"github.com/txn2/config-service/pkg/notify"
	"github.com/txn2/config-service/pkg/validate"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification drivers.
const (
	NotifyNone = "none"
	NotifyNATS = "nats"
)

// Config holds the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Cache    cache.Config   `yaml:"cache"`
	Notify   NotifyConfig   `yaml:"notify"`
	Audit    audit.Config   `yaml:"audit"`
	MCP      MCPConfig      `yaml:"mcp"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DatabaseConfig configures the PostgreSQL connection. DSN takes precedence
// over the individual fields.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// StorageConfig selects the configuration store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // postgres, memory
}

// LimitsConfig bounds request sizes.
type LimitsConfig struct {
	MaxPayloadBytes     int `yaml:"max_payload_bytes"`
	DefaultHistoryLimit int `yaml:"default_history_limit"`
	MaxHistoryLimit     int `yaml:"max_history_limit"`
}

// NotifyConfig configures save notifications.
type NotifyConfig struct {
	Driver string            `yaml:"driver"` // none, nats
	NATS   notify.NATSConfig `yaml:"nats"`
}

// MCPConfig configures the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadConfig loads configuration from a file. ${VAR} references are
// expanded, environment overrides applied and defaults filled in.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig builds a Config from YAML bytes. Empty input yields the
// defaults with environment overrides applied.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the defaults with environment overrides applied.
func DefaultConfig() (*Config, error) {
	return ParseConfig(nil)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyEnv applies the deployment environment variables on top of the file.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("environment variable %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("DATABASE_URL", &cfg.Database.DSN)
	str("POSTGRES_HOST", &cfg.Database.Host)
	str("POSTGRES_DB", &cfg.Database.Name)
	str("POSTGRES_USER", &cfg.Database.User)
	str("POSTGRES_PASSWORD", &cfg.Database.Password)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("REDIS_ADDR", &cfg.Cache.Addr)
	str("NATS_URL", &cfg.Notify.NATS.URL)

	for key, dst := range map[string]*int{
		"POSTGRES_PORT": &cfg.Database.Port,
		"DB_POOL_MIN":   &cfg.Database.MaxIdleConns,
		"DB_POOL_MAX":   &cfg.Database.MaxOpenConns,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	var port int
	if err := num("PORT", &port); err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Address = ":" + strconv.Itoa(port)
	}
	return nil
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "config-service"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = Version
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StoragePostgres
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = min(5, cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits.MaxPayloadBytes = validate.DefaultMaxSize
	}
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = NotifyNone
	}
	if cfg.Notify.NATS.ClientName == "" {
		cfg.Notify.NATS.ClientName = cfg.Server.Name
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
}

// ConnString returns the PostgreSQL connection string, built from the
// individual fields when no DSN is configured.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.DSN == "" {
			for field, v := range map[string]string{
				"database.host":     c.Database.Host,
				"database.name":     c.Database.Name,
				"database.user":     c.Database.User,
				"database.password": c.Database.Password,
			} {
				if v == "" {
					errs = append(errs, field+" is required")
				}
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be %s or %s", StoragePostgres, StorageMemory))
	}

	if c.Storage.Driver == StorageMemory && c.Audit.Enabled {
		errs = append(errs, "audit requires storage.driver postgres")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "database.max_idle_conns cannot exceed database.max_open_conns")
	}
	if c.Limits.MaxPayloadBytes < 0 {
		errs = append(errs, "limits.max_payload_bytes cannot be negative")
	}

	switch c.Notify.Driver {
	case NotifyNone:
	case NotifyNATS:
		if c.Notify.NATS.URL == "" {
			errs = append(errs, "notify.nats.url is required when notify.driver is nats")
		}
	default:
		errs = append(errs, "notify.driver must be none or nats")
	}

	switch c.Cache.Driver {
	case "", "memory", "none":
	case "redis":
		if c.Cache.Addr == "" {
			errs = append(errs, "cache.addr is required when cache.driver is redis")
		}
	default:
		errs = append(errs, "cache.driver must be memory, redis or none")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, "log.format must be text or json")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
