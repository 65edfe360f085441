// Package memory provides an in-process configuration store for tests and
// single-node development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/txn2/config-service/pkg/configstore"
)

// Store keeps records in memory, guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]configstore.Record
	now     func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string][]configstore.Record),
		now:     time.Now,
	}
}

// Insert assigns or validates the version and appends the record.
func (s *Store) Insert(_ context.Context, service string, version *int, payload []byte) (*configstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.records[service]
	v := 1
	for _, r := range existing {
		if r.Version >= v {
			v = r.Version + 1
		}
	}
	if version != nil {
		v = *version
		for _, r := range existing {
			if r.Version == v {
				return nil, fmt.Errorf("inserting %s version %d: %w", service, v, configstore.ErrVersionConflict)
			}
		}
	}

	s.nextID++
	rec := configstore.Record{
		ID:        s.nextID,
		Service:   service,
		Version:   v,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: s.now().UTC(),
	}
	s.records[service] = append(existing, rec)
	out := rec
	return &out, nil
}

// Latest returns the highest version for service.
func (s *Store) Latest(_ context.Context, service string) (*configstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *configstore.Record
	for i := range s.records[service] {
		r := s.records[service][i]
		if latest == nil || r.Version > latest.Version {
			latest = &r
		}
	}
	return latest, nil
}

// Version returns an exact version for service.
func (s *Store) Version(_ context.Context, service string, version int) (*configstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records[service] {
		if r.Version == version {
			out := r
			return &out, nil
		}
	}
	return nil, nil //nolint:nilnil // nil record means not found
}

// Recent returns up to limit revisions, newest version first.
func (s *Store) Recent(_ context.Context, service string, limit int) ([]configstore.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revisions := make([]configstore.Revision, 0, len(s.records[service]))
	for _, r := range s.records[service] {
		revisions = append(revisions, configstore.Revision{Version: r.Version, CreatedAt: r.CreatedAt})
	}
	sort.Slice(revisions, func(i, j int) bool { return revisions[i].Version > revisions[j].Version })
	if limit > 0 && len(revisions) > limit {
		revisions = revisions[:limit]
	}
	return revisions, nil
}

// Ping always succeeds.
func (*Store) Ping(context.Context) error {
	return nil
}

// Mode returns "memory".
func (*Store) Mode() string {
	return "memory"
}

var _ configstore.Store = (*Store)(nil)
