package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/haystack/pkg/httpclient"
)

// HTTPConfig は HTTPStore の設定。
type HTTPConfig struct {
	// URL はトークン配布サービスのURL。{"token": "..."} を返すこと。
	URL string
	// BearerToken はトークン配布サービスへの認証に使用するトークン。
	BearerToken string
	// Timeout は1回の問い合わせのタイムアウト。
	Timeout time.Duration
}

// tokenResponse はトークン配布サービスのレスポンス。
type tokenResponse struct {
	Token string `json:"token"`
}

// HTTPStore はトークン配布サービスから現在のトークンを取得する Store。
type HTTPStore struct {
	client *httpclient.Client
	cache  tokenCache
}

// NewHTTPStore は HTTPStore を生成する。
func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("トークン配布サービスのURLが指定されていません")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	opts := []httpclient.Option{httpclient.WithTimeout(cfg.Timeout)}
	if cfg.BearerToken != "" {
		opts = append(opts, httpclient.WithHeader("Authorization", "Bearer "+cfg.BearerToken))
	}
	return &HTTPStore{client: httpclient.New(cfg.URL, opts...)}, nil
}

// CurrentToken は最後に Refresh で読み込んだトークンを返す。
func (s *HTTPStore) CurrentToken() (Token, bool) {
	return s.cache.get()
}

// Name は種類名を返す。
func (*HTTPStore) Name() string {
	return "http"
}

// Refresh はトークン配布サービスからトークンを読み込む。
// 404 の場合はトークン無しにし、それ以外の失敗では直前のトークンを保持する。
func (s *HTTPStore) Refresh(ctx context.Context) error {
	var resp tokenResponse
	err := s.client.GetJSON(ctx, "", &resp)

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		s.cache.clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("トークン配布サービスからの取得に失敗: %w", err)
	}

	s.cache.set(Token(resp.Token))
	return nil
}
