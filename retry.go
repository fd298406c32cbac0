package stm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/haldanelabs/tvarstm/internal/enginelog"
)

type activeHandleKey struct{}

// Atomically runs fn as an optimistic transaction: fn's reads and writes against the Tx it is
// given are buffered in memory and have no effect on the backend until this call commits them in
// a single linearized step. fn may be invoked more than once if earlier attempts lose a commit
// race; it must be free of side effects other than through the Tx it receives, since any attempt
// that doesn't win the race is simply discarded and retried.
//
// If ctx already identifies an Atomically call in progress on this same handle (re-entrance), the
// call is dispatched to a fresh handle sharing this Store's backend instead of nesting — this
// engine has no concept of nested transactions, only independent ones against a shared backend.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if active, ok := ctx.Value(activeHandleKey{}).(string); ok && active == s.id {
		return s.NewHandle().Atomically(ctx, fn)
	}
	ctx = context.WithValue(ctx, activeHandleKey{}, s.id)

	log := enginelog.WithHandle(s.id)
	attempts := 0
	for {
		attempts++
		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}

		err := s.commit(ctx, tx)
		if err == nil {
			log.Debug().Int("attempts", attempts).Msg("transaction committed")
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}

		if attempts >= s.opts.maxAttempts {
			return fmt.Errorf("stm: atomically: %w after %d attempts", ErrMaxRetriesExceeded, attempts)
		}
		log.Debug().Int("attempts", attempts).Msg("transaction conflict, retrying")
		if err := sleepBackoff(ctx, s.opts, attempts); err != nil {
			return err
		}
	}
}

// sleepBackoff implements §4.6's backoff cadence: every backoffEvery attempts, sleep for
// min(backoffCapMillis, 2^(attempts/backoffEvery)) milliseconds. It returns ctx.Err() if ctx is
// cancelled while sleeping.
func sleepBackoff(ctx context.Context, o options, attempts int) error {
	if attempts%o.backoffEvery != 0 {
		return nil
	}
	exp := float64(attempts / o.backoffEvery)
	millis := math.Min(o.backoffCapMillis, math.Pow(2, exp))
	timer := time.NewTimer(time.Duration(millis) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
