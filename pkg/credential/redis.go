package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RedisConfig は RedisStore の設定。
type RedisConfig struct {
	// Addr は Redis のアドレス（例: "localhost:6379"）。
	Addr string
	// Password は Redis の認証パスワード。
	Password string
	// DB は使用するデータベース番号。
	DB int
	// Key はトークンを格納しているキー。
	Key string
	// Timeout は1回の問い合わせのタイムアウト。
	Timeout time.Duration
	// FailureThreshold はサーキットブレーカーを開くまでの連続失敗回数。
	FailureThreshold uint32
	// OpenTimeout はサーキットブレーカーが開いている時間。
	OpenTimeout time.Duration
}

// RedisStore は Redis のキーから現在のトークンを取得する Store。
// 問い合わせはサーキットブレーカー越しに行い、Redis が応答しない場合は即座に失敗させる。
type RedisStore struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	cache   tokenCache
}

// NewRedisStore は RedisStore を生成する。
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("Redisのアドレスが指定されていません")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisStore(client, cfg, logger), nil
}

func newRedisStore(client redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Key == "" {
		cfg.Key = "haystack:auth_token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis-credential",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("サーキットブレーカーの状態が変化",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RedisStore{
		client:  client,
		key:     cfg.Key,
		timeout: cfg.Timeout,
		breaker: breaker,
	}
}

// CurrentToken は最後に Refresh で読み込んだトークンを返す。
func (s *RedisStore) CurrentToken() (Token, bool) {
	return s.cache.get()
}

// Name は種類名を返す。
func (*RedisStore) Name() string {
	return "redis"
}

// Refresh は Redis からトークンを読み込む。キーが存在しない場合はトークン無しにする。
func (s *RedisStore) Refresh(ctx context.Context) error {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		value, err := s.client.Get(ctx, s.key).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return value, err
	})
	if err != nil {
		return fmt.Errorf("Redisからのトークン取得に失敗: %w", err)
	}

	s.cache.set(Token(result.(string)))
	return nil
}

// Close は Redis クライアントを閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
