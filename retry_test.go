package stm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAtomicallyPropagatesClosureError(t *testing.T) {
	s := openTest(t)
	boom := errors.New("boom")
	err := s.Atomically(context.Background(), func(ctx context.Context, tx *Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestAtomicallyMaxRetriesExceeded(t *testing.T) {
	s, err := Open(WithMaxAttempts(3), WithBackoffCadence(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "c", float64(0)))

	attempts := 0
	err = s.Atomically(ctx, func(ctx context.Context, tx *Tx) error {
		attempts++
		if _, err := tx.ReadTVar(ctx, "c"); err != nil {
			return err
		}
		tx.WriteTVar("c", float64(attempts))
		// Force every attempt to lose its race by bumping the backend's version out from under
		// the read set right before commit.
		require.NoError(t, increment(ctx, s, "c"))
		return nil
	})
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	require.Equal(t, 3, attempts)
}

func TestAtomicallyReentranceDispatchesToFreshHandle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "c", float64(0)))

	var innerHandle string
	err := s.Atomically(ctx, func(ctx context.Context, outer *Tx) error {
		return s.Atomically(ctx, func(ctx context.Context, inner *Tx) error {
			innerHandle = inner.store.ID()
			v, err := inner.ReadTVar(ctx, "c")
			if err != nil {
				return err
			}
			inner.WriteTVar("c", v.(float64)+1)
			return nil
		})
	})
	require.NoError(t, err)
	require.NotEqual(t, s.ID(), innerHandle)

	value, _, ok, err := s.SnapshotRecord(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(1), value)
}
