package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nao1215/haystack/internal/config"
	"github.com/nao1215/haystack/pkg/credential"
)

// TestOpenStore は設定に応じた Store の生成を検証する。
func TestOpenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("demoとstatic", func(t *testing.T) {
		t.Parallel()

		store, closeStore, err := OpenStore(ctx, config.StoreConfig{Kind: config.StoreDemo}, nil)
		require.NoError(t, err)
		defer closeStore()
		_, ok := store.CurrentToken()
		assert.False(t, ok)

		store, _, err = OpenStore(ctx, config.StoreConfig{Kind: config.StoreStatic, Token: "xyz"}, nil)
		require.NoError(t, err)
		token, ok := store.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, credential.Token("xyz"), token)
	})

	t.Run("fileはファイルの内容をトークンとし、無ければトークン無しになること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

		store, _, err := OpenStore(ctx, config.StoreConfig{Kind: config.StoreFile, File: path}, nil)
		require.NoError(t, err)
		token, ok := store.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, credential.Token("from-file"), token)

		store, _, err = OpenStore(ctx, config.StoreConfig{Kind: config.StoreFile, File: path + ".missing"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "demo", credential.NameOf(store))
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()

		store, closeStore, err := OpenStore(ctx, config.StoreConfig{
			Kind:   config.StoreSQLite,
			SQLite: config.SQLiteConfig{DSN: ":memory:"},
		}, nil)
		require.NoError(t, err)
		defer func() { assert.NoError(t, closeStore()) }()

		sqlite, ok := store.(*credential.SQLiteStore)
		require.True(t, ok)
		require.NoError(t, sqlite.Put(ctx, "db-token", time.Now().Add(time.Hour)))
		require.NoError(t, sqlite.Refresh(ctx))

		token, ok := store.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, credential.Token("db-token"), token)
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		require.NoError(t, mr.Set("tokens:current", "redis-token"))

		store, closeStore, err := OpenStore(ctx, config.StoreConfig{
			Kind:  config.StoreRedis,
			Redis: config.RedisConfig{Addr: mr.Addr(), Key: "tokens:current"},
		}, nil)
		require.NoError(t, err)
		defer func() { assert.NoError(t, closeStore()) }()

		require.NoError(t, store.(credential.Refresher).Refresh(ctx))
		token, ok := store.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, credential.Token("redis-token"), token)
	})

	t.Run("http", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "remote-token"})
		}))
		t.Cleanup(ts.Close)

		store, _, err := OpenStore(ctx, config.StoreConfig{
			Kind: config.StoreHTTP,
			HTTP: config.HTTPConfig{URL: ts.URL},
		}, nil)
		require.NoError(t, err)

		require.NoError(t, store.(credential.Refresher).Refresh(ctx))
		token, ok := store.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, credential.Token("remote-token"), token)
	})

	t.Run("vault", func(t *testing.T) {
		t.Parallel()

		store, _, err := OpenStore(ctx, config.StoreConfig{
			Kind:  config.StoreVault,
			Vault: config.VaultConfig{Address: "http://127.0.0.1:1", Token: "root", Path: "haystack"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "vault", credential.NameOf(store))
		_, ok := store.CurrentToken()
		assert.False(t, ok, "取得前はトークン無し")
	})

	t.Run("jwt", func(t *testing.T) {
		t.Parallel()

		const secret = "0123456789abcdef0123456789abcdef"
		store, _, err := OpenStore(ctx, config.StoreConfig{
			Kind: config.StoreJWT,
			JWT:  config.JWTConfig{Secret: secret, Subject: "gateway"},
		}, nil)
		require.NoError(t, err)

		token, ok := store.CurrentToken()
		require.True(t, ok)
		claims, err := credential.ParseServiceToken(secret, string(token))
		require.NoError(t, err)
		assert.Equal(t, "gateway", claims.Subject)
	})

	t.Run("未知の種類はエラーになること", func(t *testing.T) {
		t.Parallel()

		_, _, err := OpenStore(ctx, config.StoreConfig{Kind: "ldap"}, nil)
		assert.Error(t, err)
	})
}

// TestStartBackground は起動時のトークン取得とファイル監視を検証する。
func TestStartBackground(t *testing.T) {
	t.Parallel()

	t.Run("Refresherは起動時に1回取得されること", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store, err := credential.OpenSQLite(ctx, ":memory:", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Put(ctx, "db-token", time.Now().Add(time.Hour)))

		cfg := config.Default()
		state := credential.NewShared(store)

		var wg sync.WaitGroup
		require.NoError(t, startBackground(ctx, &wg, cfg, store, state, zap.NewNop()))

		token, ok := state.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, credential.Token("db-token"), token)

		cancel()
		wg.Wait()
	})

	t.Run("fileはファイルの変更でStoreが差し替わること", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("first"), 0o600))

		cfg := config.Default()
		cfg.Store = config.StoreConfig{Kind: config.StoreFile, File: path}
		store, _, err := OpenStore(ctx, cfg.Store, nil)
		require.NoError(t, err)
		state := credential.NewShared(store)

		var wg sync.WaitGroup
		require.NoError(t, startBackground(ctx, &wg, cfg, store, state, zap.NewNop()))

		require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
		assert.Eventually(t, func() bool {
			token, ok := state.CurrentToken()
			return ok && token == "second"
		}, 5*time.Second, 20*time.Millisecond)

		cancel()
		wg.Wait()
	})
}

// TestRun は設定からの起動と停止を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("ctxの終了で正常に停止すること", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Port = "0"
		cfg.Store = config.StoreConfig{Kind: config.StoreStatic, Token: "xyz"}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- Run(ctx, cfg, zap.NewNop()) }()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Runが終了しませんでした")
		}
	})

	t.Run("不正な設定はエラーになること", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Store.Kind = "ldap"
		assert.Error(t, Run(context.Background(), cfg, zap.NewNop()))
	})
}
