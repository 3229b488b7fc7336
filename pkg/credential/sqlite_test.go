package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestSQLiteStore はSQLiteStoreを検証する。
func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("トークンが登録されていない場合はトークン無しになること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		require.NoError(t, s.Refresh(ctx))
		_, ok := s.CurrentToken()
		assert.False(t, ok)
		assert.Equal(t, "sqlite", s.Name())
	})

	t.Run("Refresh前はトークン無しでRefresh後に最新のトークンが返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		require.NoError(t, s.Put(ctx, "old", time.Time{}))
		require.NoError(t, s.Put(ctx, "new", time.Time{}))

		_, ok := s.CurrentToken()
		assert.False(t, ok)

		require.NoError(t, s.Refresh(ctx))
		token, ok := s.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, Token("new"), token)
	})

	t.Run("失効したトークンは使われないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		require.NoError(t, s.Put(ctx, "old", time.Time{}))
		require.NoError(t, s.Put(ctx, "new", time.Time{}))
		require.NoError(t, s.Revoke(ctx, "new"))

		require.NoError(t, s.Refresh(ctx))
		token, ok := s.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, Token("old"), token)

		require.NoError(t, s.Revoke(ctx, "old"))
		require.NoError(t, s.Refresh(ctx))
		_, ok = s.CurrentToken()
		assert.False(t, ok)
	})

	t.Run("期限切れのトークンは使われないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		require.NoError(t, s.Put(ctx, "expired", time.Now().Add(-time.Minute)))
		require.NoError(t, s.Refresh(ctx))
		_, ok := s.CurrentToken()
		assert.False(t, ok)

		require.NoError(t, s.Put(ctx, "valid", time.Now().Add(time.Hour)))
		require.NoError(t, s.Refresh(ctx))
		token, ok := s.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, Token("valid"), token)
	})

	t.Run("失効済みのトークンを再登録すると有効になること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		require.NoError(t, s.Put(ctx, "again", time.Time{}))
		require.NoError(t, s.Revoke(ctx, "again"))
		require.NoError(t, s.Put(ctx, "again", time.Time{}))
		require.NoError(t, s.Refresh(ctx))

		token, ok := s.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, Token("again"), token)
	})

	t.Run("空のトークンと存在しないトークンの失効はエラーになること", func(t *testing.T) {
		t.Parallel()

		s := newTestSQLiteStore(t)
		assert.True(t, errors.Is(s.Put(ctx, "", time.Time{}), ErrNoToken))
		assert.True(t, errors.Is(s.Revoke(ctx, "missing"), ErrNoToken))
	})

	t.Run("接続を閉じた後のRefreshは失敗し直前のトークンが保持されること", func(t *testing.T) {
		t.Parallel()

		s, err := OpenSQLite(ctx, ":memory:", nil)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, "kept", time.Time{}))
		require.NoError(t, s.Refresh(ctx))
		require.NoError(t, s.Close())

		require.Error(t, s.Refresh(ctx))
		token, ok := s.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, Token("kept"), token)
	})
}
