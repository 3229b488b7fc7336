package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// maxTokenFileSize はトークンファイルとして読み込むサイズの上限。
const maxTokenFileSize = 64 << 10

// LoadTokenFile はファイルの内容（前後の空白を除去したもの）をトークンとする StaticStore を返す。
func LoadTokenFile(path string) (*StaticStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("トークンファイルの参照に失敗: %w", err)
	}
	if info.Size() > maxTokenFileSize {
		return nil, fmt.Errorf("トークンファイルが大きすぎます: size=%d", info.Size())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("トークンファイルの読み込みに失敗: %w", err)
	}
	return NewStaticStore(strings.TrimSpace(string(content))), nil
}

// TokenFileWatcher はトークンファイルを監視し、変更のたびに Shared の Store を差し替える。
// ファイルが削除された場合は DemoStore に差し替え、すべてのリクエストを拒否する。
type TokenFileWatcher struct {
	path     string
	shared   *Shared
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
}

// NewTokenFileWatcher は TokenFileWatcher を生成する。
// ファイルの置き換え（rename）を検知するため、親ディレクトリを監視する。
func NewTokenFileWatcher(path string, shared *Shared, logger *zap.Logger) (*TokenFileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("トークンファイルのパス解決に失敗: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の開始に失敗: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("ディレクトリの監視登録に失敗: %w", err)
	}

	return &TokenFileWatcher{
		path:     filepath.Clean(abs),
		shared:   shared,
		watcher:  fsWatcher,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Run は現在のファイル内容を反映した後、ctx が終了するまで変更を監視する。
func (w *TokenFileWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	w.reload()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("トークンファイルの監視でエラーが発生", zap.Error(err))
		}
	}
}

// reload はファイルを読み込み、Shared の Store を差し替える。
func (w *TokenFileWatcher) reload() {
	store, err := LoadTokenFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		w.shared.Swap(NewDemoStore())
		w.logger.Warn("トークンファイルが存在しないためトークン無しに切り替えました", zap.String("path", w.path))
		return
	}
	if err != nil {
		w.logger.Error("トークンファイルの再読み込みに失敗", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.shared.Swap(store)
	w.logger.Info("トークンファイルを再読み込みしました", zap.String("path", w.path))
}
