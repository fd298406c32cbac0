package stm

import (
	"context"

	"github.com/haldanelabs/tvarstm/internal/jsonpath"
)

type writeKind int

const (
	writeFull writeKind = iota
	writePatch
)

type patchOp struct {
	path  string
	segs  []jsonpath.Segment
	value any
}

type writePlan struct {
	kind      writeKind
	fullValue any
	patches   []patchOp
}

type readEntry struct {
	value         any
	version       uint64
	accessedPaths []string
}

// Tx is the per-attempt transaction context passed to the closure given to Store.Atomically. It
// tracks every TVar this attempt has read or written; none of that state is visible to any other
// concurrent attempt, and none of it survives past the attempt that produced it.
//
// A Tx must not be used outside the closure that received it, or from more than one goroutine.
type Tx struct {
	store *Store
	reads map[string]*readEntry
	// writeOrder preserves first-touched order for the write set, giving commit a stable (if
	// arbitrary) application order as the spec requires.
	writeOrder []string
	writes     map[string]*writePlan
}

func newTx(s *Store) *Tx {
	return &Tx{
		store:  s,
		reads:  make(map[string]*readEntry),
		writes: make(map[string]*writePlan),
	}
}

func (t *Tx) noteWrite(id string, plan *writePlan) {
	if _, exists := t.writes[id]; !exists {
		t.writeOrder = append(t.writeOrder, id)
	}
	t.writes[id] = plan
}

// materialize ensures id has a read-set entry, fetching it from the backend if this is the first
// touch. It does not apply this transaction's own pending patches — callers that need the
// patched view call overlayPatches afterward, so that the cached entry always reflects the
// snapshot actually validated at commit.
func (t *Tx) materialize(ctx context.Context, id string) (*readEntry, error) {
	if e, ok := t.reads[id]; ok {
		return e, nil
	}
	value, version, ok, err := t.store.backend.SelectValueVersion(ctx, id)
	if err != nil {
		return nil, wrapBackend(err)
	}
	if !ok {
		return nil, &notFoundError{id: id}
	}
	decoded, err := decodeJSON(value)
	if err != nil {
		return nil, err
	}
	e := &readEntry{value: decoded, version: version}
	t.reads[id] = e
	return e, nil
}

// overlayPatches applies any pending Patch plan for id onto a clone of base, for read-your-writes
// visibility without mutating the cached read-set snapshot.
func (t *Tx) overlayPatches(id string, base any) any {
	plan, ok := t.writes[id]
	if !ok || plan.kind != writePatch || len(plan.patches) == 0 {
		return base
	}
	view := cloneJSON(base)
	for _, p := range plan.patches {
		view = jsonpath.Set(view, p.segs, cloneJSON(p.value))
	}
	return view
}

// ReadTVar returns id's current value as this transaction sees it: its own pending write (if
// any), the cached value from an earlier read in this same attempt, or a fresh snapshot from the
// backend.
func (t *Tx) ReadTVar(ctx context.Context, id string) (any, error) {
	if plan, ok := t.writes[id]; ok && plan.kind == writeFull {
		if _, already := t.reads[id]; !already {
			version, ok, err := t.store.backend.SelectVersion(ctx, id)
			if err != nil {
				return nil, wrapBackend(err)
			}
			if ok {
				t.reads[id] = &readEntry{value: plan.fullValue, version: version}
			}
		}
		return plan.fullValue, nil
	}
	if e, ok := t.reads[id]; ok {
		return t.overlayPatches(id, e.value), nil
	}
	e, err := t.materialize(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.overlayPatches(id, e.value), nil
}

// WriteTVar installs a full replacement value for id, discarding any prior write plan (a
// FullReplace always wins over preceding patches or replaces for the same id). It does not
// require id to have been read first.
func (t *Tx) WriteTVar(id string, value any) {
	t.noteWrite(id, &writePlan{kind: writeFull, fullValue: cloneJSON(value)})
}

// ReadTVarPath projects id's value at path. It returns ErrPathAbsent if any segment of path
// traverses a missing object key or array index.
func (t *Tx) ReadTVarPath(ctx context.Context, id, path string) (any, error) {
	canonical, segs, err := jsonpath.Normalize(path)
	if err != nil {
		return nil, err
	}

	if plan, ok := t.writes[id]; ok && plan.kind == writeFull {
		v, present := jsonpath.Get(plan.fullValue, segs)
		if !present {
			return nil, &pathAbsentError{id: id, path: canonical}
		}
		return v, nil
	}

	e, ok := t.reads[id]
	if !ok {
		var err error
		e, err = t.materialize(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	e.accessedPaths = append(e.accessedPaths, canonical)
	view := t.overlayPatches(id, e.value)
	v, present := jsonpath.Get(view, segs)
	if !present {
		return nil, &pathAbsentError{id: id, path: canonical}
	}
	return v, nil
}

// UpdateTVarPath sets the value at path within id. If id's write set already holds a FullReplace,
// the replacement value is mutated in place at path; otherwise the update is recorded as a patch
// to be applied against the committed value at commit time. It does not require id to have been
// read first.
func (t *Tx) UpdateTVarPath(id, path string, value any) error {
	canonical, segs, err := jsonpath.Normalize(path)
	if err != nil {
		return err
	}
	cloned := cloneJSON(value)

	if plan, ok := t.writes[id]; ok && plan.kind == writeFull {
		plan.fullValue = jsonpath.Set(plan.fullValue, segs, cloned)
		return nil
	}

	plan, ok := t.writes[id]
	if !ok || plan.kind != writePatch {
		plan = &writePlan{kind: writePatch}
		t.noteWrite(id, plan)
	}
	plan.patches = append(plan.patches, patchOp{path: canonical, segs: segs, value: cloned})
	return nil
}
