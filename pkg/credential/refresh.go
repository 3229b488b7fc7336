package credential

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher は外部の取得元からトークンを読み込み、キャッシュを更新する Store が実装する。
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RunRefresher は直ちに1回、その後 interval ごとに Refresh を呼び出す。
// ctx が終了するまでブロックする。失敗した場合はログに出力し、直前のトークンを保持し続ける。
func RunRefresher(ctx context.Context, r Refresher, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	refresh := func() {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("トークンの更新に失敗", zap.Error(err))
		}
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
