package gateway

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/haystack/internal/config"
	"github.com/nao1215/haystack/pkg/credential"
)

// initialRefreshTimeout は起動時のトークン取得に許す時間。
const initialRefreshTimeout = 5 * time.Second

func noopCloser() error { return nil }

// OpenStore は設定に応じた Store を生成する。
// 返す closer は Store が保持する接続を閉じるため、使用後に必ず呼び出すこと。
func OpenStore(ctx context.Context, sc config.StoreConfig, logger *zap.Logger) (credential.Store, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch sc.Kind {
	case config.StoreDemo, "":
		return credential.NewDemoStore(), noopCloser, nil

	case config.StoreStatic:
		return credential.NewStaticStore(sc.Token), noopCloser, nil

	case config.StoreFile:
		// 以降の変更は TokenFileWatcher が反映する
		store, err := credential.LoadTokenFile(sc.File)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("トークンファイルが存在しないためトークン無しで起動します", zap.String("path", sc.File))
			return credential.NewDemoStore(), noopCloser, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return store, noopCloser, nil

	case config.StoreSQLite:
		store, err := credential.OpenSQLite(ctx, sc.SQLite.DSN, logger.Named("migration"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.StoreRedis:
		store, err := credential.NewRedisStore(credential.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Key:      sc.Redis.Key,
			Timeout:  sc.Redis.Timeout,
		}, logger.Named("redis"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.StoreVault:
		store, err := credential.NewVaultStore(credential.VaultConfig{
			Address: sc.Vault.Address,
			Token:   sc.Vault.Token,
			Mount:   sc.Vault.Mount,
			Path:    sc.Vault.Path,
			Field:   sc.Vault.Field,
			Timeout: sc.Vault.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noopCloser, nil

	case config.StoreHTTP:
		store, err := credential.NewHTTPStore(credential.HTTPConfig{
			URL:         sc.HTTP.URL,
			BearerToken: sc.HTTP.BearerToken,
			Timeout:     sc.HTTP.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noopCloser, nil

	case config.StoreJWT:
		store, err := credential.NewJWTStore(credential.JWTConfig{
			Secret:      sc.JWT.Secret,
			Subject:     sc.JWT.Subject,
			TTL:         sc.JWT.TTL,
			RenewBefore: sc.JWT.RenewBefore,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noopCloser, nil
	}

	return nil, nil, fmt.Errorf("未知の store.kind です: %q", sc.Kind)
}

// Run は設定に従って Store を開き、トークンの更新とファイル監視を開始してサーバーを起動する。
// ctx が終了するとサーバーを停止し、バックグラウンド処理の終了を待ってから戻る。
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("Storeの初期化に失敗: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Storeのクローズに失敗", zap.Error(err))
		}
	}()

	state := credential.NewShared(store)
	logger.Info("Storeを初期化しました", zap.String("store", state.Name()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if err := startBackground(ctx, &wg, cfg, store, state, logger); err != nil {
		return err
	}

	err = NewServer(cfg, state, logger).Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// startBackground は Store の種類に応じてトークンの定期更新とファイル監視を開始する。
func startBackground(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, store credential.Store, state *credential.Shared, logger *zap.Logger) error {
	if r, ok := store.(credential.Refresher); ok {
		// 最初のリクエストが取得前のキャッシュを参照しないよう、起動時に1回取得しておく
		refreshCtx, cancel := context.WithTimeout(ctx, initialRefreshTimeout)
		if err := r.Refresh(refreshCtx); err != nil {
			logger.Warn("起動時のトークン取得に失敗", zap.Error(err))
		}
		cancel()

		wg.Go(func() {
			credential.RunRefresher(ctx, r, cfg.RefreshInterval, logger.Named("refresher"))
		})
	}

	if cfg.Store.Kind == config.StoreFile {
		watcher, err := credential.NewTokenFileWatcher(cfg.Store.File, state, logger.Named("token-file"))
		if err != nil {
			return err
		}
		wg.Go(func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("トークンファイルの監視が停止しました", zap.Error(err))
			}
		})
	}
	return nil
}
