package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultIssuer はサービストークンの発行者。
const defaultIssuer = "haystack-gateway"

// ServiceClaims はサービストークンのクレーム。
type ServiceClaims struct {
	jwt.RegisteredClaims
}

// JWTConfig は JWTStore の設定。
type JWTConfig struct {
	// Secret は HS256 署名用の秘密鍵。
	Secret string
	// Subject はトークンの主体。
	Subject string
	// TTL はトークンの有効期間。
	TTL time.Duration
	// RenewBefore は有効期限のどれだけ前に再発行するか。
	RenewBefore time.Duration
}

// JWTStore は秘密鍵から HS256 のサービストークンを生成し、期限が近づくと再生成する Store。
type JWTStore struct {
	cfg   JWTConfig
	now   func() time.Time
	cache tokenCache

	mu      sync.Mutex
	expires time.Time
}

// NewJWTStore は JWTStore を生成し、最初のトークンを発行する。
func NewJWTStore(cfg JWTConfig) (*JWTStore, error) {
	if cfg.Secret == "" {
		return nil, errors.New("JWTの秘密鍵が指定されていません")
	}
	if cfg.Subject == "" {
		cfg.Subject = "haystack"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RenewBefore <= 0 || cfg.RenewBefore >= cfg.TTL {
		cfg.RenewBefore = cfg.TTL / 5
	}

	s := &JWTStore{cfg: cfg, now: time.Now}
	if err := s.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// CurrentToken は現在のサービストークンを返す。
func (s *JWTStore) CurrentToken() (Token, bool) {
	return s.cache.get()
}

// Name は種類名を返す。
func (*JWTStore) Name() string {
	return "jwt"
}

// Refresh はトークンの期限が近い場合に再発行する。
func (s *JWTStore) Refresh(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, ok := s.cache.get(); ok && now.Before(s.expires.Add(-s.cfg.RenewBefore)) {
		return nil
	}

	expires := now.Add(s.cfg.TTL)
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   s.cfg.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}

	s.expires = expires
	s.cache.set(Token(signed))
	return nil
}

// ParseServiceToken は JWTStore が発行したトークンを検証し、クレームを返す。
func ParseServiceToken(secret, tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(defaultIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("トークンが無効です: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	return claims, nil
}
