package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haldanelabs/tvarstm/backend"
)

func TestInsertThenAlreadyExists(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte("1")))
	require.ErrorIs(t, s.Insert(ctx, "k1", []byte("2")), backend.ErrAlreadyExists)
}

func TestSelectAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, ok, err := s.SelectValueVersion(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCASUpdateAdvancesVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte("1")))
	err := s.WithExclusive(ctx, func(ctx context.Context, tx backend.ExclusiveTx) error {
		updated, err := tx.CASUpdate(ctx, "k1", []byte("2"), 0)
		require.NoError(t, err)
		require.True(t, updated)
		return nil
	})
	require.NoError(t, err)
	value, version, ok, err := s.SelectValueVersion(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), value)
	require.Equal(t, uint64(1), version)
}

func TestCASUpdateRejectsStaleVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte("1")))
	err := s.WithExclusive(ctx, func(ctx context.Context, tx backend.ExclusiveTx) error {
		updated, err := tx.CASUpdate(ctx, "k1", []byte("2"), 7)
		require.NoError(t, err)
		require.False(t, updated)
		return nil
	})
	require.NoError(t, err)
}

func TestWithExclusiveSerializesCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "counter", []byte("0")))

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for {
				_, version, _, err := s.SelectValueVersion(ctx, "counter")
				require.NoError(t, err)
				done := false
				err = s.WithExclusive(ctx, func(ctx context.Context, tx backend.ExclusiveTx) error {
					updated, err := tx.CASUpdate(ctx, "counter", []byte("x"), version)
					if err != nil {
						return err
					}
					done = updated
					return nil
				})
				require.NoError(t, err)
				if done {
					return
				}
			}
		}()
	}
	wg.Wait()
	_, version, _, err := s.SelectValueVersion(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, uint64(writers), version)
}
