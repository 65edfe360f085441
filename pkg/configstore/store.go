// Package configstore defines the storage gateway for versioned service
// configurations. Records are append-only: once a (service, version) pair is
// written it is never updated or deleted.
//
// Payloads cross this boundary as canonical JSON bytes so that backends do
// not depend on the document model.
package configstore

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict is returned when a (service, version) pair already exists.
var ErrVersionConflict = errors.New("version already exists")

// Store persists and retrieves configuration records.
type Store interface {
	// Insert stores payload for service. When version is nil the next
	// sequential version is assigned; resolution and insertion are atomic.
	Insert(ctx context.Context, service string, version *int, payload []byte) (*Record, error)
	// Latest returns the highest version for service, or nil if none exists.
	Latest(ctx context.Context, service string) (*Record, error)
	// Version returns an exact version, or nil if it does not exist.
	Version(ctx context.Context, service string, version int) (*Record, error)
	// Recent returns up to limit revisions for service, newest version first.
	Recent(ctx context.Context, service string, limit int) ([]Revision, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Mode returns the backend name: "database" or "memory".
	Mode() string
}

// Record is one stored configuration version.
type Record struct {
	ID        int64     `json:"id"`
	Service   string    `json:"service"`
	Version   int       `json:"version"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Revision describes a historical configuration version without its payload.
type Revision struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}
