package platform

import (
	"database/sql"
	"log/slog"

	"github.com/txn2/config-service/pkg/cache"
	"github.com/txn2/config-service/pkg/configstore"
	"github.com/txn2/config-service/pkg/notify"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Database connection (optional, will be opened from config if not provided).
	DB *sql.DB

	// Store (optional, will be created from config if not provided).
	Store configstore.Store

	// Cache (optional, will be created from config if not provided).
	Cache cache.Cache

	// Notifier (optional, will be created from config if not provided).
	Notifier notify.Notifier

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithStore sets the configuration store.
func WithStore(s configstore.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

// WithCache sets the record cache.
func WithCache(c cache.Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithNotifier sets the save notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Options) {
		o.Notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}
