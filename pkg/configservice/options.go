package configservice

import (
	"log/slog"
	"time"

	"github.com/txn2/config-service/pkg/audit"
	"github.com/txn2/config-service/pkg/cache"
	"github.com/txn2/config-service/pkg/metrics"
	"github.com/txn2/config-service/pkg/notify"
	"github.com/txn2/config-service/pkg/template"
	"github.com/txn2/config-service/pkg/validate"
)

const (
	// DefaultHistoryLimit is used when a history request gives no limit.
	DefaultHistoryLimit = 10

	// MaxHistoryLimit caps the number of revisions a history request returns.
	MaxHistoryLimit = 1000
)

// Options configures a Service.
type Options struct {
	Renderer *template.Renderer
	Cache    cache.Cache
	CacheTTL time.Duration
	Notifier notify.Notifier
	Audit    audit.Logger
	// AuditReads also records get and history operations.
	AuditReads bool
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	MaxSize             int
	DefaultHistoryLimit int
	MaxHistoryLimit     int
}

// Option is a functional option for configuring the service.
type Option func(*Options)

// WithRenderer sets the template renderer used by Get.
func WithRenderer(r *template.Renderer) Option {
	return func(o *Options) {
		o.Renderer = r
	}
}

// WithCache sets the record cache and its entry lifetime.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Options) {
		o.Cache = c
		o.CacheTTL = ttl
	}
}

// WithNotifier sets the save notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Options) {
		o.Notifier = n
	}
}

// WithAudit sets the audit logger. Reads are recorded only when logReads is set.
func WithAudit(l audit.Logger, logReads bool) Option {
	return func(o *Options) {
		o.Audit = l
		o.AuditReads = logReads
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMaxSize sets the payload size limit in bytes.
func WithMaxSize(n int) Option {
	return func(o *Options) {
		o.MaxSize = n
	}
}

// WithHistoryLimits sets the default and maximum history lengths.
func WithHistoryLimits(def, maxLimit int) Option {
	return func(o *Options) {
		o.DefaultHistoryLimit = def
		o.MaxHistoryLimit = maxLimit
	}
}

func (o *Options) applyDefaults() {
	if o.Renderer == nil {
		o.Renderer = template.New(nil)
	}
	if o.Notifier == nil {
		o.Notifier = notify.Noop{}
	}
	if o.Audit == nil {
		o.Audit = audit.Noop{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxSize <= 0 {
		o.MaxSize = validate.DefaultMaxSize
	}
	if o.DefaultHistoryLimit <= 0 {
		o.DefaultHistoryLimit = DefaultHistoryLimit
	}
	if o.MaxHistoryLimit <= 0 {
		o.MaxHistoryLimit = MaxHistoryLimit
	}
	if o.DefaultHistoryLimit > o.MaxHistoryLimit {
		o.DefaultHistoryLimit = o.MaxHistoryLimit
	}
}
