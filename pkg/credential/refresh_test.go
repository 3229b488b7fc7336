package credential

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

// TestRunRefresher は定期更新ループを検証する。
func TestRunRefresher(t *testing.T) {
	t.Parallel()

	t.Run("起動直後と一定間隔ごとに更新されること", func(t *testing.T) {
		t.Parallel()

		r := &countingRefresher{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			RunRefresher(ctx, r, 10*time.Millisecond, nil)
			close(done)
		}()

		assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("コンテキスト終了後もループが停止しない")
		}
	})

	t.Run("更新に失敗してもループが継続すること", func(t *testing.T) {
		t.Parallel()

		r := &countingRefresher{err: errors.New("unavailable")}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go RunRefresher(ctx, r, 10*time.Millisecond, nil)

		assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	})
}
