// Package cache holds stored configuration records keyed by service and
// version. Stored versions never change, so entries only expire to bound
// memory.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a byte-oriented key/value cache.
type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. A zero ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Ping checks the backend.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver   string        `yaml:"driver"` // "memory" | "redis" | "none"
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

const (
	defaultTTL    = 10 * time.Minute
	defaultPrefix = "config-service:"
)

// New creates the configured backend. It returns nil for driver "none".
func New(cfg Config) (Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.TTL), nil
	case "redis":
		return NewRedis(cfg), nil
	case "none":
		return nil, nil //nolint:nilnil // caching disabled
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// RecordKey is the cache key of a stored (service, version) record.
func RecordKey(service string, version int) string {
	return fmt.Sprintf("record:%s:%d", service, version)
}
