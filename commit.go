package stm

import (
	"context"

	"github.com/haldanelabs/tvarstm/backend"
	"github.com/haldanelabs/tvarstm/internal/enginelog"
	"github.com/haldanelabs/tvarstm/internal/jsonpath"
)

// commit runs the validate-then-apply protocol from §4.3 inside a single backend.Store
// WithExclusive bracket, so the whole thing is one linearization point. It returns ErrConflict if
// validation or a CAS update loses a race with another committed transaction, a *missingTVarError
// if a write-set id vanished from the backend, or a wrapped backend error on I/O failure.
func (s *Store) commit(ctx context.Context, tx *Tx) error {
	return s.backend.WithExclusive(ctx, func(ctx context.Context, etx backend.ExclusiveTx) error {
		if err := validateReadSet(ctx, etx, tx); err != nil {
			return err
		}
		return applyWriteSet(ctx, etx, tx)
	})
}

func validateReadSet(ctx context.Context, etx backend.ExclusiveTx, tx *Tx) error {
	for id, entry := range tx.reads {
		version, ok, err := etx.SelectVersion(ctx, id)
		if err != nil {
			return wrapBackend(err)
		}
		if !ok {
			return &missingTVarError{id: id}
		}
		if version != entry.version {
			enginelog.Logger.Debug().
				Str("tvar", id).
				Uint64("observed_version", entry.version).
				Uint64("current_version", version).
				Strs("accessed_paths", entry.accessedPaths).
				Msg("read set validation conflict")
			return ErrConflict
		}
	}
	return nil
}

func applyWriteSet(ctx context.Context, etx backend.ExclusiveTx, tx *Tx) error {
	for _, id := range tx.writeOrder {
		plan := tx.writes[id]
		newValue, expectedVersion, err := resolveWrite(ctx, etx, tx, id, plan)
		if err != nil {
			return err
		}
		encoded, err := encodeJSON(newValue)
		if err != nil {
			return err
		}
		updated, err := etx.CASUpdate(ctx, id, encoded, expectedVersion)
		if err != nil {
			return wrapBackend(err)
		}
		if !updated {
			enginelog.Logger.Debug().Str("tvar", id).Msg("cas update conflict")
			return ErrConflict
		}
	}
	return nil
}

// resolveWrite computes the effective new value and the version the CAS update must match for a
// single write-set entry, per §4.3 step 3.
func resolveWrite(ctx context.Context, etx backend.ExclusiveTx, tx *Tx, id string, plan *writePlan) (any, uint64, error) {
	if plan.kind == writeFull {
		entry, hasRead := tx.reads[id]
		if hasRead {
			return plan.fullValue, entry.version, nil
		}
		version, ok, err := etx.SelectVersion(ctx, id)
		if err != nil {
			return nil, 0, wrapBackend(err)
		}
		if !ok {
			return nil, 0, &missingTVarError{id: id}
		}
		return plan.fullValue, version, nil
	}

	// writePatch: fetch the base to patch from the read-set cache if present, else freshly from
	// the backend, then apply every recorded patch in insertion order.
	var base any
	var expectedVersion uint64
	if entry, ok := tx.reads[id]; ok {
		base = cloneJSON(entry.value)
		expectedVersion = entry.version
	} else {
		value, version, ok, err := etx.SelectValueVersion(ctx, id)
		if err != nil {
			return nil, 0, wrapBackend(err)
		}
		if !ok {
			return nil, 0, &missingTVarError{id: id}
		}
		decoded, err := decodeJSON(value)
		if err != nil {
			return nil, 0, err
		}
		base = decoded
		expectedVersion = version
	}

	newValue := base
	for _, p := range plan.patches {
		newValue = jsonpath.Set(newValue, p.segs, p.value)
	}
	return newValue, expectedVersion, nil
}
