// Package configservice implements the versioned configuration operations:
// save, get, history and a dry-run validate. It composes validation,
// storage, caching, template rendering, notifications and auditing.
package configservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/config-service/pkg/audit"
	"github.com/txn2/config-service/pkg/cache"
	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/configstore"
	"github.com/txn2/config-service/pkg/document"
	"github.com/txn2/config-service/pkg/metrics"
	"github.com/txn2/config-service/pkg/notify"
	"github.com/txn2/config-service/pkg/validate"
)

// StatusSaved is the status reported for a successful save.
const StatusSaved = "saved"

// ErrNotFound is returned by Get when no matching configuration exists.
var ErrNotFound = conferr.New(conferr.NotFound, "Configuration not found")

// SaveResult is the outcome of a successful save.
type SaveResult struct {
	Service string `json:"service"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// GetOptions selects and shapes the configuration returned by Get.
type GetOptions struct {
	// Version selects an exact version. Nil selects the latest.
	Version *int
	// Render expands template markers in the payload using Vars.
	Render bool
	Vars   map[string]any
}

// Config is a stored configuration as returned to callers.
type Config struct {
	ID        int64             `json:"id"`
	Service   string            `json:"service"`
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Payload   document.Document `json:"payload"`
}

// Service is the configuration versioning service.
type Service struct {
	store configstore.Store
	opts  Options
}

// New creates a Service over store.
func New(store configstore.Store, opts ...Option) *Service {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()
	return &Service{store: store, opts: o}
}

// Mode reports the storage backend in use.
func (s *Service) Mode() string {
	return s.store.Mode()
}

// Ping checks the storage backend.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("pinging store: %w", err)
	}
	return nil
}

// Save validates raw and stores it as a new version of service. The version
// is the document's own "version" field when present, otherwise one more
// than the service's highest stored version.
func (s *Service) Save(ctx context.Context, service string, raw []byte) (result *SaveResult, err error) {
	start := time.Now()
	version := 0
	defer func() {
		s.record(ctx, audit.OperationSave, service, version, map[string]any{"bytes": len(raw)}, start, err)
	}()

	tree, err := s.check(service, raw)
	if err != nil {
		return nil, err
	}

	doc, _ := document.AsDocument(tree)
	var declared *int
	if v, ok := validate.DeclaredVersion(doc); ok {
		declared = &v
	}

	payload, err := document.Marshal(doc)
	if err != nil {
		return nil, s.internal("encoding configuration", err, "service", service)
	}

	rec, err := s.store.Insert(ctx, service, declared, payload)
	if err != nil {
		if errors.Is(err, configstore.ErrVersionConflict) {
			return nil, conflict(service, declared, err)
		}
		return nil, s.internal("saving configuration", err, "service", service)
	}
	version = rec.Version

	s.opts.Logger.Info("saved configuration", "service", service, "version", rec.Version)
	s.afterSave(ctx, rec)

	return &SaveResult{Service: service, Version: rec.Version, Status: StatusSaved}, nil
}

// check runs the validation steps shared by Save and Validate, in order.
func (s *Service) check(service string, raw []byte) (any, error) {
	if err := validate.ServiceName(service); err != nil {
		return nil, err
	}
	tree, err := s.checkBody(raw)
	if err != nil {
		return nil, err
	}
	if violations := validate.Structure(tree); len(violations) > 0 {
		return nil, conferr.Schema(violations)
	}
	if err := validate.DocumentSize(tree, s.opts.MaxSize); err != nil {
		return nil, err
	}
	return tree, nil
}

func (s *Service) checkBody(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, conferr.New(conferr.EmptyBody, "Request body is required")
	}
	if err := validate.Size(raw, s.opts.MaxSize); err != nil {
		return nil, err
	}
	tree, err := document.Parse(raw)
	if err != nil {
		return nil, conferr.Wrap(conferr.ParseError, "", err)
	}
	return tree, nil
}

func conflict(service string, declared *int, err error) error {
	if declared == nil {
		return conferr.Wrap(conferr.VersionConflict,
			fmt.Sprintf("A concurrent save for service %s took the same version", service), err)
	}
	return conferr.Wrap(conferr.VersionConflict,
		fmt.Sprintf("Version %d already exists for service %s", *declared, service), err)
}

// afterSave runs the post-commit side effects. None of them can fail the save.
func (s *Service) afterSave(ctx context.Context, rec *configstore.Record) {
	ctx = context.WithoutCancel(ctx)
	s.cacheRecord(ctx, rec)

	info := RequestInfoFrom(ctx)
	err := s.opts.Notifier.Saved(ctx, notify.Event{
		Service:   rec.Service,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		RequestID: info.RequestID,
	})
	s.opts.Metrics.Notification(err)
	if err != nil {
		s.opts.Logger.Warn("failed to publish save notification",
			"service", rec.Service, "version", rec.Version, "error", err)
	}
}

// Get returns the latest or an exact version of service, optionally
// rendered with template variables.
func (s *Service) Get(ctx context.Context, service string, opts GetOptions) (cfg *Config, err error) {
	start := time.Now()
	version := 0
	defer func() {
		s.record(ctx, audit.OperationGet, service, version, getParams(opts), start, err)
	}()

	if err = validate.ServiceName(service); err != nil {
		return nil, err
	}
	if opts.Version != nil && *opts.Version < 1 {
		return nil, conferr.New(conferr.InvalidVersion, "Version must be a positive integer")
	}

	rec, err := s.lookup(ctx, service, opts.Version)
	if err != nil {
		return nil, s.internal("loading configuration", err, "service", service)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	version = rec.Version

	doc, err := document.Decode(rec.Payload)
	if err != nil {
		return nil, s.internal("decoding stored configuration", err, "service", service, "version", rec.Version)
	}

	if opts.Render {
		vars := opts.Vars
		if vars == nil {
			vars = map[string]any{}
		}
		doc, err = s.opts.Renderer.Render(doc, vars)
		if err != nil {
			s.opts.Logger.Warn("template rendering failed",
				"service", service, "version", rec.Version, "error", err)
			return nil, err
		}
		s.opts.Logger.Debug("rendered configuration template", "service", service, "version", rec.Version)
	}

	return &Config{
		ID:        rec.ID,
		Service:   rec.Service,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		Payload:   doc,
	}, nil
}

func getParams(opts GetOptions) map[string]any {
	params := map[string]any{"render": opts.Render}
	if opts.Version != nil {
		params["version"] = *opts.Version
	}
	if len(opts.Vars) > 0 {
		params["vars"] = opts.Vars
	}
	return params
}

// History lists up to limit revisions of service, newest first. A limit of
// zero or less uses the default; larger limits are capped. An unknown
// service yields an empty list.
func (s *Service) History(ctx context.Context, service string, limit int) (revs []configstore.Revision, err error) {
	start := time.Now()
	defer func() {
		s.record(ctx, audit.OperationHistory, service, 0, map[string]any{"limit": limit}, start, err)
	}()

	if err = validate.ServiceName(service); err != nil {
		return nil, err
	}
	limit = s.clampLimit(limit)

	revs, err = s.store.Recent(ctx, service, limit)
	if err != nil {
		return nil, s.internal("loading history", err, "service", service)
	}
	if revs == nil {
		revs = []configstore.Revision{}
	}
	return revs, nil
}

func (s *Service) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.opts.DefaultHistoryLimit
	case limit > s.opts.MaxHistoryLimit:
		return s.opts.MaxHistoryLimit
	}
	return limit
}

// Validate reports what Save would conclude about raw without storing it.
// Body, size and syntax problems are returned as errors; structural
// problems are listed in the summary.
func (s *Service) Validate(_ context.Context, raw []byte) (*validate.Summary, error) {
	tree, err := s.checkBody(raw)
	if err != nil {
		return nil, err
	}
	summary := validate.Summarize(tree)
	if err := validate.DocumentSize(tree, s.opts.MaxSize); err != nil {
		summary.Valid = false
		summary.Errors = append(summary.Errors, err.Error())
	}
	return &summary, nil
}

// lookup reads an exact version through the cache, or the latest version
// from the store.
func (s *Service) lookup(ctx context.Context, service string, version *int) (*configstore.Record, error) {
	if version == nil {
		rec, err := s.store.Latest(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("loading latest: %w", err)
		}
		if rec != nil {
			s.cacheRecord(ctx, rec)
		}
		return rec, nil
	}

	if rec := s.cached(ctx, service, *version); rec != nil {
		return rec, nil
	}
	rec, err := s.store.Version(ctx, service, *version)
	if err != nil {
		return nil, fmt.Errorf("loading version %d: %w", *version, err)
	}
	if rec != nil {
		s.cacheRecord(ctx, rec)
	}
	return rec, nil
}

// cachedRecord is the cache encoding of a record.
type cachedRecord struct {
	ID        int64           `json:"id"`
	Service   string          `json:"service"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (s *Service) cached(ctx context.Context, service string, version int) *configstore.Record {
	if s.opts.Cache == nil {
		return nil
	}
	data, ok, err := s.opts.Cache.Get(ctx, cache.RecordKey(service, version))
	if err != nil {
		s.opts.Logger.Warn("cache read failed", "service", service, "version", version, "error", err)
	}
	if err != nil || !ok {
		s.opts.Metrics.CacheLookup(false)
		return nil
	}
	var cr cachedRecord
	if err := json.Unmarshal(data, &cr); err != nil {
		s.opts.Logger.Warn("discarding unreadable cache entry", "service", service, "version", version, "error", err)
		s.opts.Metrics.CacheLookup(false)
		return nil
	}
	s.opts.Metrics.CacheLookup(true)
	return &configstore.Record{
		ID:        cr.ID,
		Service:   cr.Service,
		Version:   cr.Version,
		CreatedAt: cr.CreatedAt,
		Payload:   []byte(cr.Payload),
	}
}

func (s *Service) cacheRecord(ctx context.Context, rec *configstore.Record) {
	if s.opts.Cache == nil {
		return
	}
	data, err := json.Marshal(cachedRecord{
		ID:        rec.ID,
		Service:   rec.Service,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		Payload:   json.RawMessage(rec.Payload),
	})
	if err != nil {
		s.opts.Logger.Warn("encoding cache entry", "service", rec.Service, "version", rec.Version, "error", err)
		return
	}
	if err := s.opts.Cache.Set(ctx, cache.RecordKey(rec.Service, rec.Version), data, s.opts.CacheTTL); err != nil {
		s.opts.Logger.Warn("cache write failed", "service", rec.Service, "version", rec.Version, "error", err)
	}
}

// internal logs err and returns the generic internal error.
func (s *Service) internal(msg string, err error, args ...any) error {
	s.opts.Logger.Error(msg, append(args, "error", err)...)
	return conferr.Wrap(conferr.Internal, "Internal server error", fmt.Errorf("%s: %w", msg, err))
}

// record emits metrics and, when enabled, an audit event for one operation.
func (s *Service) record(ctx context.Context, op audit.Operation, service string, version int,
	params map[string]any, start time.Time, err error,
) {
	elapsed := time.Since(start)
	outcome := metrics.OutcomeOK
	var kind, msg string
	if err != nil {
		kind = conferr.KindOf(err).String()
		msg = err.Error()
		outcome = kind
	}
	s.opts.Metrics.ObserveOperation(string(op), outcome, elapsed)

	if op.IsRead() && !s.opts.AuditReads {
		return
	}

	info := RequestInfoFrom(ctx)
	event := audit.NewEvent(op, service).
		WithVersion(version).
		WithTransport(info.Transport).
		WithRequestID(info.RequestID).
		WithParameters(params).
		WithResult(err == nil, kind, msg, elapsed.Milliseconds())

	if logErr := s.opts.Audit.Log(context.WithoutCancel(ctx), *event); logErr != nil {
		s.opts.Logger.Warn("failed to write audit event", "operation", op, "service", service, "error", logErr)
	}
}
