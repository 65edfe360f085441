package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	auditpostgres "github.com/txn2/config-service/pkg/audit/postgres"
	"github.com/txn2/config-service/pkg/cache"
	"github.com/txn2/config-service/pkg/configservice"
	"github.com/txn2/config-service/pkg/configstore"
	"github.com/txn2/config-service/pkg/configstore/memory"
	"github.com/txn2/config-service/pkg/configstore/postgres"
	"github.com/txn2/config-service/pkg/database"
	"github.com/txn2/config-service/pkg/database/migrate"
	"github.com/txn2/config-service/pkg/health"
	"github.com/txn2/config-service/pkg/httpapi"
	"github.com/txn2/config-service/pkg/mcptools"
	"github.com/txn2/config-service/pkg/metrics"
	"github.com/txn2/config-service/pkg/notify"
)

const auditCleanupInterval = 24 * time.Hour

// openDB and runMigrations are replaced in tests.
var (
	openDB        = database.Open
	runMigrations = migrate.Run
)

// Platform wires the configuration service and its surfaces.
type Platform struct {
	config *Config
	logger *slog.Logger

	lifecycle *Lifecycle

	db       *sql.DB
	store    configstore.Store
	cache    cache.Cache
	notifier notify.Notifier
	audit    *auditpostgres.Store
	metrics  *metrics.Metrics

	service   *configservice.Service
	health    *health.Checker
	mcpServer *mcp.Server
	handler   http.Handler

	stopOnce sync.Once
	stopErr  error
}

// New creates a new platform instance. Components not supplied through
// options are built from the configuration. On failure everything opened
// so far is closed.
func New(ctx context.Context, opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	p := &Platform{
		config:    options.Config,
		logger:    options.Logger,
		lifecycle: NewLifecycle(options.Logger),
	}

	if err := p.initializeComponents(ctx, options); err != nil {
		_ = p.lifecycle.stopAll(ctx)
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

func (p *Platform) initializeComponents(ctx context.Context, opts *Options) error {
	if err := p.initStore(ctx, opts); err != nil {
		return err
	}
	if err := p.initCache(opts); err != nil {
		return err
	}
	if err := p.initNotifier(opts); err != nil {
		return err
	}
	if err := p.initMetrics(); err != nil {
		return err
	}
	p.initAudit()
	p.initService()
	p.initHealth()
	p.initSurfaces()
	return nil
}

// initStore opens the database when needed and selects the store.
func (p *Platform) initStore(ctx context.Context, opts *Options) error {
	p.db = opts.DB
	if opts.Store != nil {
		p.store = opts.Store
		return nil
	}

	if p.config.Storage.Driver == StorageMemory {
		p.logger.Warn("using in-memory storage; configurations are lost on restart")
		p.store = memory.New()
		return nil
	}

	if p.db == nil {
		dbCfg := p.config.Database
		db, err := openDB(ctx, database.Config{
			DSN:             dbCfg.ConnString(),
			MaxOpenConns:    dbCfg.MaxOpenConns,
			MaxIdleConns:    dbCfg.MaxIdleConns,
			ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		p.db = db
		p.lifecycle.RegisterCloser("database", db)
	}

	if p.config.Database.AutoMigrate {
		if err := runMigrations(p.db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		p.logger.Info("database migrations applied")
	}

	p.store = postgres.New(p.db)
	return nil
}

func (p *Platform) initCache(opts *Options) error {
	if opts.Cache != nil {
		p.cache = opts.Cache
		return nil
	}
	c, err := cache.New(p.config.Cache)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	if c != nil {
		p.lifecycle.RegisterCloser("cache", c)
	}
	p.cache = c
	return nil
}

func (p *Platform) initNotifier(opts *Options) error {
	if opts.Notifier != nil {
		p.notifier = opts.Notifier
		return nil
	}
	if p.config.Notify.Driver != NotifyNATS {
		p.notifier = notify.Noop{}
		return nil
	}
	n, err := notify.NewNATS(p.config.Notify.NATS, p.logger)
	if err != nil {
		return fmt.Errorf("connecting notifier: %w", err)
	}
	p.lifecycle.RegisterCloser("notifier", n)
	p.notifier = n
	return nil
}

func (p *Platform) initMetrics() error {
	if !p.config.Metrics.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}
	if err := m.RegisterDB(reg, p.db); err != nil {
		return err
	}
	p.metrics = m
	return nil
}

// initAudit creates the audit store. Audit needs the database, which
// Validate guarantees for the postgres driver.
func (p *Platform) initAudit() {
	if !p.config.Audit.Enabled || p.db == nil {
		return
	}
	p.audit = auditpostgres.New(p.db, auditpostgres.Config{
		RetentionDays: p.config.Audit.RetentionDays,
	})
	p.lifecycle.OnStart("audit-cleanup", func(context.Context) error {
		p.audit.StartCleanupRoutine(auditCleanupInterval)
		return nil
	})
	p.lifecycle.RegisterCloser("audit", p.audit)
}

func (p *Platform) initService() {
	limits := p.config.Limits
	opts := []configservice.Option{
		configservice.WithLogger(p.logger),
		configservice.WithNotifier(p.notifier),
		configservice.WithMetrics(p.metrics),
		configservice.WithMaxSize(limits.MaxPayloadBytes),
		configservice.WithHistoryLimits(limits.DefaultHistoryLimit, limits.MaxHistoryLimit),
	}
	if p.cache != nil {
		opts = append(opts, configservice.WithCache(p.cache, p.config.Cache.TTL))
	}
	if p.audit != nil {
		opts = append(opts, configservice.WithAudit(p.audit, p.config.Audit.LogReads))
	}
	p.service = configservice.New(p.store, opts...)
}

func (p *Platform) initHealth() {
	p.health = health.NewChecker(p.config.Server.Name)
	p.health.AddCheck("database", p.service.Ping)
	if p.cache != nil {
		p.health.AddCheck("cache", p.cache.Ping)
	}
}

func (p *Platform) initSurfaces() {
	p.mcpServer = mcptools.NewServer(p.config.Server.Name, p.config.Server.Version,
		mcptools.New(p.service, p.logger))

	deps := httpapi.Deps{
		Service:      p.service,
		Health:       p.health,
		Metrics:      p.metrics,
		Logger:       p.logger,
		MaxBodyBytes: p.config.Limits.MaxPayloadBytes,
	}
	if p.audit != nil {
		deps.AuditQuerier = p.audit
		deps.AuditMetrics = p.audit
	}
	if p.config.MCP.Enabled {
		deps.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return p.mcpServer
		}, nil)
	}
	p.handler = httpapi.NewHandler(deps)
}

// Start runs the start hooks and marks the service ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	p.logger.Info("platform started",
		"storage", p.service.Mode(),
		"mcp", p.config.MCP.Enabled,
		"audit", p.audit != nil)
	return nil
}

// Stop marks the service draining and releases every resource. It may be
// called without Start and more than once.
func (p *Platform) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.health.SetDraining()
		if p.lifecycle.IsStarted() {
			p.stopErr = p.lifecycle.Stop(ctx)
			return
		}
		p.stopErr = p.lifecycle.stopAll(ctx)
	})
	return p.stopErr
}

// Handler returns the HTTP handler.
func (p *Platform) Handler() http.Handler {
	return p.handler
}

// MCPServer returns the MCP server.
func (p *Platform) MCPServer() *mcp.Server {
	return p.mcpServer
}

// Service returns the configuration service.
func (p *Platform) Service() *configservice.Service {
	return p.service
}

// Health returns the health checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// DB returns the database connection, or nil with in-memory storage.
func (p *Platform) DB() *sql.DB {
	return p.db
}
