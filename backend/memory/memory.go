// Package memory implements backend.Store as a sharded, mutex-guarded in-memory map. It is the
// default backend opened by Store.Open with BackendEphemeral, adapted from the sharding scheme of
// an in-memory MVCC key-value store: the same maphash-based key projection and shard count, but
// collapsed to a single current (value, version) pair per key since this backend serves an
// optimistic-concurrency engine that never needs a version history, only the latest one.
package memory

import (
	"context"
	"hash/maphash"
	"sync"

	"github.com/haldanelabs/tvarstm/backend"
)

// shardDegree is the number of independent maps records are spread across, each guarded by its
// own lock so keys that hash to different shards never contend with one another outside of a
// commit.
const shardDegree = 512

type record struct {
	value   []byte
	version uint64
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*record
}

// Store is a sharded in-memory backend.Store. The zero value is not usable; construct one with
// New.
type Store struct {
	seed     maphash.Seed
	shards   [shardDegree]shard
	commitMu sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	s := &Store{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*record, 16)
	}
	return s
}

var _ backend.Store = (*Store)(nil)

func (s *Store) shardFor(id string) *shard {
	return &s.shards[maphash.String(s.seed, id)%shardDegree]
}

func (s *Store) Insert(_ context.Context, id string, value []byte) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.records[id]; exists {
		return backend.ErrAlreadyExists
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	sh.records[id] = &record{value: cp, version: 0}
	return nil
}

func (s *Store) SelectValueVersion(_ context.Context, id string) ([]byte, uint64, bool, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	r, ok := sh.records[id]
	if !ok {
		return nil, 0, false, nil
	}
	cp := make([]byte, len(r.value))
	copy(cp, r.value)
	return cp, r.version, true, nil
}

func (s *Store) SelectVersion(_ context.Context, id string) (uint64, bool, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	r, ok := sh.records[id]
	if !ok {
		return 0, false, nil
	}
	return r.version, true, nil
}

func (s *Store) WithExclusive(ctx context.Context, fn func(context.Context, backend.ExclusiveTx) error) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return fn(ctx, exclusiveTx{store: s})
}

func (s *Store) Close() error { return nil }

// exclusiveTx is only ever constructed while Store.commitMu is held, so its CASUpdate does not
// need to re-take it; it still takes each shard's own lock so concurrent lock-free readers
// (SelectValueVersion/SelectVersion outside a commit) never observe a torn record.
type exclusiveTx struct {
	store *Store
}

func (t exclusiveTx) SelectVersion(ctx context.Context, id string) (uint64, bool, error) {
	return t.store.SelectVersion(ctx, id)
}

func (t exclusiveTx) SelectValueVersion(ctx context.Context, id string) ([]byte, uint64, bool, error) {
	return t.store.SelectValueVersion(ctx, id)
}

func (t exclusiveTx) CASUpdate(_ context.Context, id string, newValue []byte, expectedVersion uint64) (bool, error) {
	sh := t.store.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	r, ok := sh.records[id]
	if !ok || r.version != expectedVersion {
		return false, nil
	}
	cp := make([]byte, len(newValue))
	copy(cp, newValue)
	r.value = cp
	r.version++
	return true, nil
}
