package stm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// increment reads "c", adds 1, and writes it back. It is used by several scenarios below to
// exercise the read-modify-write shape that optimistic concurrency control has to get right.
func increment(ctx context.Context, s *Store, id string) error {
	return s.Atomically(ctx, func(ctx context.Context, tx *Tx) error {
		v, err := tx.ReadTVar(ctx, id)
		if err != nil {
			return err
		}
		tx.WriteTVar(id, v.(float64)+1)
		return nil
	})
}

func TestScenarioSingleWriterIncrement(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "c", float64(0)))

	for i := 0; i < 10; i++ {
		require.NoError(t, increment(ctx, s, "c"))
	}

	value, version, ok, err := s.SnapshotRecord(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(10), value)
	require.Equal(t, uint64(10), version)
}

func TestScenarioConcurrentIncrements(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "c", float64(0)))

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = increment(ctx, s, "c")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	value, _, ok, err := s.SnapshotRecord(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(writers), value)
}

func TestScenarioTransferWithPaths(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	initial := map[string]any{
		"alice": map[string]any{"balance": float64(100), "txs": []any{}},
		"bob":   map[string]any{"balance": float64(50), "txs": []any{}},
	}
	require.NoError(t, s.NewTVar(ctx, "u", initial))

	err := s.Atomically(ctx, func(ctx context.Context, tx *Tx) error {
		aliceBalance, err := tx.ReadTVarPath(ctx, "u", "alice.balance")
		if err != nil {
			return err
		}
		bobBalance, err := tx.ReadTVarPath(ctx, "u", "bob.balance")
		if err != nil {
			return err
		}

		if err := tx.UpdateTVarPath("u", "alice.balance", aliceBalance.(float64)-30); err != nil {
			return err
		}
		if err := tx.UpdateTVarPath("u", "bob.balance", bobBalance.(float64)+30); err != nil {
			return err
		}

		aliceTxs, err := tx.ReadTVarPath(ctx, "u", "alice.txs")
		if err != nil {
			return err
		}
		if err := tx.UpdateTVarPath("u", "alice.txs", append(append([]any{}, aliceTxs.([]any)...), "sent 30")); err != nil {
			return err
		}
		bobTxs, err := tx.ReadTVarPath(ctx, "u", "bob.txs")
		if err != nil {
			return err
		}
		return tx.UpdateTVarPath("u", "bob.txs", append(append([]any{}, bobTxs.([]any)...), "got 30"))
	})
	require.NoError(t, err)

	value, _, ok, err := s.SnapshotRecord(ctx, "u")
	require.NoError(t, err)
	require.True(t, ok)

	doc := value.(map[string]any)
	require.Equal(t, float64(70), doc["alice"].(map[string]any)["balance"])
	require.Equal(t, float64(80), doc["bob"].(map[string]any)["balance"])
	require.Len(t, doc["alice"].(map[string]any)["txs"].([]any), 1)
	require.Len(t, doc["bob"].(map[string]any)["txs"].([]any), 1)
}

func TestScenarioRollbackOnThrow(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "c", float64(0)))

	boom := errors.New("x")
	err := s.Atomically(ctx, func(ctx context.Context, tx *Tx) error {
		tx.WriteTVar("c", float64(1))
		return boom
	})
	require.ErrorIs(t, err, boom)

	value, version, ok, err := s.SnapshotRecord(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(0), value)
	require.Equal(t, uint64(0), version)
}

func TestScenarioConflictRetry(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "c", float64(0)))

	const perWriter = 100
	var wg sync.WaitGroup
	wg.Add(2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := increment(ctx, s, "c"); err != nil {
					errs[i] = err
					return
				}
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	value, _, ok, err := s.SnapshotRecord(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(2*perWriter), value)
}

func TestScenarioPathOnArray(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.NewTVar(ctx, "xs", []any{"A", "B", "C"}))

	var v any
	err := s.Atomically(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		v, err = tx.ReadTVarPath(ctx, "xs", "[1]")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "B", v)

	err = s.Atomically(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.UpdateTVarPath("xs", "[1]", "BB")
	})
	require.NoError(t, err)

	value, _, ok, err := s.SnapshotRecord(ctx, "xs")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []any{"A", "BB", "C"}, value)
}
