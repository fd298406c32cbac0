// Package stm implements a software transactional memory engine over a collection of named,
// JSON-valued transactional variables (TVars). Client code composes read/write sequences against
// TVars inside a closure passed to Store.Atomically; the engine executes that closure
// optimistically, validates it against every other committed transaction, and retries on
// conflict until it commits or the retry ceiling is reached.
//
// The engine itself only needs a Versioned KV Store (see package backend) to persist records; the
// in-memory backend in backend/memory is the default, and backend/sqlite is a persistent option.
package stm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haldanelabs/tvarstm/backend"
	"github.com/haldanelabs/tvarstm/backend/memory"
	"github.com/haldanelabs/tvarstm/backend/sqlite"
	"github.com/haldanelabs/tvarstm/internal/enginelog"
)

// Store owns a set of TVars backed by a backend.Store. Multiple Store values may share one
// backend (see NewHandle); each carries its own handle id used for logging and re-entrance
// detection, but no TVar-scoped state of its own — all TVar state lives in the backend.
type Store struct {
	id      string
	backend backend.Store
	opts    options
}

// Open creates a Store. With no options it opens a fresh in-memory backend. Use WithBackendKind,
// WithLocation, or WithBackend to control persistence.
func Open(opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, apply := range opts {
		if err := apply(&o); err != nil {
			return nil, fmt.Errorf("stm: open: %w", err)
		}
	}

	b := o.backend
	if b == nil {
		var err error
		switch o.backendKind {
		case BackendPersistent:
			if o.location == "" {
				return nil, fmt.Errorf("stm: open: %w", errMissingLocation)
			}
			b, err = sqlite.Open(o.location)
		default:
			b = memory.New()
		}
		if err != nil {
			return nil, fmt.Errorf("stm: open: %w", err)
		}
	}

	id := o.handleID
	if id == "" {
		id = uuid.NewString()
	}
	s := &Store{id: id, backend: b, opts: o}
	enginelog.WithHandle(s.id).Info().Msg("store handle opened")
	return s, nil
}

var errMissingLocation = fmt.Errorf("location required for a persistent backend")

// ID returns this handle's identifier, stable for its lifetime.
func (s *Store) ID() string { return s.id }

// NewHandle returns a new Store sharing this one's backend and retry configuration, but with its
// own handle id. Handles may be used concurrently from different goroutines; TVar state is always
// read from and committed to the shared backend.
func (s *Store) NewHandle() *Store {
	return &Store{id: uuid.NewString(), backend: s.backend, opts: s.opts}
}

// Close releases the underlying backend's resources. Call it on exactly one handle once every
// handle sharing its backend is done.
func (s *Store) Close() error { return s.backend.Close() }

// NewTVar creates a new TVar with the given id and initial value, starting at version 0. It fails
// with ErrAlreadyExists if id is already present.
func (s *Store) NewTVar(ctx context.Context, id string, initial any) error {
	raw, err := encodeJSON(initial)
	if err != nil {
		return fmt.Errorf("stm: encode initial value for %q: %w", id, err)
	}
	if err := s.backend.Insert(ctx, id, raw); err != nil {
		if err == backend.ErrAlreadyExists {
			return &alreadyExistsError{id: id}
		}
		return wrapBackend(err)
	}
	enginelog.WithHandle(s.id).Debug().Str("tvar", id).Msg("tvar created")
	return nil
}

// SnapshotRecord returns the current committed value and version for id, or ok == false if no
// such TVar exists.
func (s *Store) SnapshotRecord(ctx context.Context, id string) (value any, version uint64, ok bool, err error) {
	raw, version, ok, err := s.backend.SelectValueVersion(ctx, id)
	if err != nil {
		return nil, 0, false, wrapBackend(err)
	}
	if !ok {
		return nil, 0, false, nil
	}
	decoded, err := decodeJSON(raw)
	if err != nil {
		return nil, 0, false, fmt.Errorf("stm: decode %q: %w", id, err)
	}
	return decoded, version, true, nil
}

// CurrentVersion returns just the version for id, cheaper than SnapshotRecord when the value
// itself isn't needed.
func (s *Store) CurrentVersion(ctx context.Context, id string) (version uint64, ok bool, err error) {
	version, ok, err = s.backend.SelectVersion(ctx, id)
	if err != nil {
		return 0, false, wrapBackend(err)
	}
	return version, ok, nil
}
