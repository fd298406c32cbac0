package stm

import (
	"errors"
	"time"

	"github.com/haldanelabs/tvarstm/backend"
)

// BackendKind selects which conforming backend.Store Open constructs when the caller doesn't
// supply one directly via WithBackend.
type BackendKind int

const (
	// BackendEphemeral opens an in-memory backend (backend/memory). Its contents do not survive
	// process exit.
	BackendEphemeral BackendKind = iota
	// BackendPersistent opens a SQLite-backed backend (backend/sqlite) at the path given by
	// WithLocation.
	BackendPersistent
)

const (
	defaultMaxAttempts      = 1000
	defaultBackoffEvery     = 10
	defaultBackoffCapMillis = 100
)

type options struct {
	backendKind BackendKind
	location    string
	handleID    string
	backend     backend.Store

	maxAttempts      int
	backoffEvery     int
	backoffCapMillis float64
}

func defaultOptions() options {
	return options{
		backendKind:      BackendEphemeral,
		maxAttempts:      defaultMaxAttempts,
		backoffEvery:     defaultBackoffEvery,
		backoffCapMillis: defaultBackoffCapMillis,
	}
}

// Option customizes Open's behavior.
type Option func(*options) error

// WithBackendKind selects the ephemeral or persistent reference backend. Ignored if WithBackend
// supplies a backend directly.
func WithBackendKind(kind BackendKind) Option {
	return func(o *options) error {
		o.backendKind = kind
		return nil
	}
}

// WithLocation sets the file path used by BackendPersistent.
func WithLocation(path string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.New("location must be non-empty for a persistent backend")
		}
		o.location = path
		return nil
	}
}

// WithHandleID assigns a stable id to the opened Store handle instead of generating one. Handles
// that share a handle id opened against the same backend are considered the same handle for
// re-entrance detection (§4.6); this is mostly useful for tests and logging, not for actually
// sharing TVar state, which instead flows through WithBackend.
func WithHandleID(id string) Option {
	return func(o *options) error {
		if id == "" {
			return errors.New("handle id must be non-empty")
		}
		o.handleID = id
		return nil
	}
}

// WithBackend supplies a pre-constructed backend.Store, bypassing BackendKind entirely. Use this
// to share one backend across multiple independently-opened Store handles (Store.NewHandle is the
// usual way to do that from an already-open Store).
func WithBackend(b backend.Store) Option {
	return func(o *options) error {
		if b == nil {
			return errors.New("backend must be non-nil")
		}
		o.backend = b
		return nil
	}
}

// WithMaxAttempts overrides the retry driver's attempt ceiling (default 1000).
func WithMaxAttempts(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.New("max attempts must be positive")
		}
		o.maxAttempts = n
		return nil
	}
}

// WithBackoffCadence overrides how often the retry driver sleeps between attempts (default: every
// 10th attempt) and the millisecond cap of its exponential backoff (default: 100ms).
func WithBackoffCadence(every int, cap time.Duration) Option {
	return func(o *options) error {
		if every < 1 {
			return errors.New("backoff cadence must be positive")
		}
		if cap <= 0 {
			return errors.New("backoff cap must be positive")
		}
		o.backoffEvery = every
		o.backoffCapMillis = float64(cap.Milliseconds())
		return nil
	}
}
