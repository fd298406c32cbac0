// Package backend defines the Versioned KV Store contract that the engine requires of its
// storage layer, and is the extension point for swapping in a different conforming store. Two
// implementations ship in this module: backend/memory (an in-memory sharded map, the default) and
// backend/sqlite (a persistent option backed by an embedded SQL engine with a JSON column).
package backend

import (
	"context"
	"errors"
)

// ErrAlreadyExists is returned by Insert when the given id already has a record.
var ErrAlreadyExists = errors.New("backend: record already exists")

// Store is the Versioned KV Store contract from which the engine builds TVar semantics. Every
// operation must be safe for concurrent use by multiple goroutines, and WithExclusive must give
// its callback a linearization point with respect to every other WithExclusive call and every
// Insert on the same Store.
type Store interface {
	// Insert creates a new record with version 0. It returns ErrAlreadyExists if id is already
	// present.
	Insert(ctx context.Context, id string, value []byte) error

	// SelectValueVersion returns the current (value, version) for id, or ok == false if absent.
	// The returned value and version always correspond to the same committed state.
	SelectValueVersion(ctx context.Context, id string) (value []byte, version uint64, ok bool, err error)

	// SelectVersion is a cheaper variant of SelectValueVersion that omits the value.
	SelectVersion(ctx context.Context, id string) (version uint64, ok bool, err error)

	// WithExclusive runs fn with a linearization point: no other WithExclusive call or Insert
	// observably interleaves with fn's reads and CAS updates. If fn returns a non-nil error, any
	// changes fn made through tx are rolled back and WithExclusive returns that error unchanged.
	WithExclusive(ctx context.Context, fn func(ctx context.Context, tx ExclusiveTx) error) error

	// Close releases any resources held by the Store (file handles, connections). Stores backed
	// purely by memory may treat this as a no-op.
	Close() error
}

// ExclusiveTx is the view of the Store available inside WithExclusive: point reads plus a
// compare-and-swap update, all serialized against concurrent commits.
type ExclusiveTx interface {
	SelectVersion(ctx context.Context, id string) (version uint64, ok bool, err error)
	SelectValueVersion(ctx context.Context, id string) (value []byte, version uint64, ok bool, err error)

	// CASUpdate sets value and increments version by exactly 1, but only if the record's current
	// version equals expectedVersion. It reports updated == false (with a nil error) when the
	// version did not match or the record doesn't exist.
	CASUpdate(ctx context.Context, id string, newValue []byte, expectedVersion uint64) (updated bool, err error)
}
