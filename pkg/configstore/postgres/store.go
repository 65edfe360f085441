// Package postgres provides a PostgreSQL-backed configuration store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/txn2/config-service/pkg/configstore"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{"id", "service", "version", "payload", "created_at"}

// Store persists configuration versions in PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert resolves the version and inserts the record in one transaction.
// A per-service advisory lock serializes concurrent writers so that
// sequential assignment does not race; the unique constraint on
// (service, version) still rejects any duplicate.
func (s *Store) Insert(ctx context.Context, service string, version *int, payload []byte) (*configstore.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, service); err != nil {
		return nil, fmt.Errorf("locking service %s: %w", service, err)
	}

	rec := &configstore.Record{Service: service, Payload: payload}
	if version != nil {
		rec.Version = *version
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM configurations WHERE service = $1`,
			service,
		).Scan(&rec.Version)
		if err != nil {
			return nil, fmt.Errorf("getting next version: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO configurations (service, version, payload)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		service, rec.Version, string(payload),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("inserting %s version %d: %w", service, rec.Version, configstore.ErrVersionConflict)
		}
		return nil, fmt.Errorf("inserting configuration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("committing %s version %d: %w", service, rec.Version, configstore.ErrVersionConflict)
		}
		return nil, fmt.Errorf("committing configuration: %w", err)
	}
	return rec, nil
}

// Latest returns the highest version for service, or nil when none exists.
func (s *Store) Latest(ctx context.Context, service string) (*configstore.Record, error) {
	query, args, err := psq.Select(recordColumns...).
		From("configurations").
		Where(sq.Eq{"service": service}).
		OrderBy("version DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return s.queryRecord(ctx, query, args...)
}

// Version returns the exact version for service, or nil when it does not exist.
func (s *Store) Version(ctx context.Context, service string, version int) (*configstore.Record, error) {
	query, args, err := psq.Select(recordColumns...).
		From("configurations").
		Where(sq.Eq{"service": service, "version": version}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return s.queryRecord(ctx, query, args...)
}

func (s *Store) queryRecord(ctx context.Context, query string, args ...any) (*configstore.Record, error) {
	var rec configstore.Record
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&rec.ID, &rec.Service, &rec.Version, &rec.Payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil record means not found
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return &rec, nil
}

// Recent returns up to limit revisions for service, newest version first.
func (s *Store) Recent(ctx context.Context, service string, limit int) ([]configstore.Revision, error) {
	qb := psq.Select("version", "created_at").
		From("configurations").
		Where(sq.Eq{"service": service}).
		OrderBy("version DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying config history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	revisions := []configstore.Revision{}
	for rows.Next() {
		var r configstore.Revision
		if err := rows.Scan(&r.Version, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning revision: %w", err)
		}
		revisions = append(revisions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating revisions: %w", err)
	}
	return revisions, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Mode returns "database".
func (*Store) Mode() string {
	return "database"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var _ configstore.Store = (*Store)(nil)
