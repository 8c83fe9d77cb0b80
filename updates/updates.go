// Package updates defines the stored update (artifact) model and the store
// contract the reaper uses to list and delete them.
//
// Implementations
//
//	memory  : process-local, for tests and single-process tools
//	redis   : shared across processes, one JSON value per update plus an index set
//	fsstore : one directory per update with an update.json manifest
package updates

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an operation names an update the store does
	// not hold.
	ErrNotFound = errors.New("updates: update not found")
	// ErrInvalidID is returned for empty ids or ids a backend cannot represent.
	ErrInvalidID = errors.New("updates: invalid update id")
)

// Update is one retained unit of deployable content.
type Update struct {
	ID             string    `json:"id" jsonschema:"minLength=1"`
	ScopeKey       string    `json:"scopeKey,omitempty"`
	RuntimeVersion string    `json:"runtimeVersion,omitempty"`
	CommitTime     time.Time `json:"commitTime"`
	LastAccessed   time.Time `json:"lastAccessed"`
}

// Store holds updates.
type Store interface {
	// List returns every stored update in no particular order.
	List(ctx context.Context) ([]Update, error)

	// Get returns nil without error when the update does not exist.
	Get(ctx context.Context, id string) (*Update, error)

	// Put inserts or replaces an update.
	Put(ctx context.Context, u Update) error

	// MarkAccessed sets LastAccessed of an existing update.
	MarkAccessed(ctx context.Context, id string, at time.Time) error

	// Delete removes an update, returning ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}
