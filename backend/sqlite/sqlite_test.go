package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haldanelabs/tvarstm/backend"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSQLiteInsertAndSelect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte(`"v1"`)))

	value, version, ok, err := s.SelectValueVersion(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"v1"`, string(value))
	require.Equal(t, uint64(0), version)
}

func TestSQLiteInsertDuplicateIsAlreadyExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte(`1`)))
	require.ErrorIs(t, s.Insert(ctx, "k1", []byte(`2`)), backend.ErrAlreadyExists)
}

func TestSQLiteCASUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte(`1`)))

	err := s.WithExclusive(ctx, func(ctx context.Context, tx backend.ExclusiveTx) error {
		updated, err := tx.CASUpdate(ctx, "k1", []byte(`2`), 0)
		require.NoError(t, err)
		require.True(t, updated)

		updated, err = tx.CASUpdate(ctx, "k1", []byte(`3`), 0)
		require.NoError(t, err)
		require.False(t, updated, "stale expected version must not apply")
		return nil
	})
	require.NoError(t, err)

	value, version, _, err := s.SelectValueVersion(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, `2`, string(value))
	require.Equal(t, uint64(1), version)
}

func TestSQLiteWithExclusiveRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "k1", []byte(`1`)))

	err := s.WithExclusive(ctx, func(ctx context.Context, tx backend.ExclusiveTx) error {
		_, err := tx.CASUpdate(ctx, "k1", []byte(`2`), 0)
		require.NoError(t, err)
		return errFake
	})
	require.Error(t, err)

	value, version, _, err := s.SelectValueVersion(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, `1`, string(value))
	require.Equal(t, uint64(0), version)
}

var errFake = fakeErr{}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake error forcing rollback" }
