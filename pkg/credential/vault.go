package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

// VaultConfig は VaultStore の設定。
type VaultConfig struct {
	// Address は Vault サーバーのアドレス（例: "https://vault:8200"）。
	Address string
	// Token は Vault の認証トークン。
	Token string
	// Mount は KV シークレットエンジンのマウント名。
	Mount string
	// Path はシークレットのパス。
	Path string
	// Field はトークンを格納しているフィールド名。
	Field string
	// Timeout は1回の問い合わせのタイムアウト。
	Timeout time.Duration
}

// VaultStore は Vault の KV シークレットから現在のトークンを取得する Store。
type VaultStore struct {
	client *vaultapi.Client
	mount  string
	path   string
	field  string
	cache  tokenCache
}

// NewVaultStore は VaultStore を生成する。
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("Vaultのシークレットパスが指定されていません")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Field == "" {
		cfg.Field = "token"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	apiCfg := vaultapi.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("Vault設定の読み込みに失敗: %w", apiCfg.Error)
	}
	apiCfg.Timeout = cfg.Timeout
	// 再試行は RunRefresher の周期に任せ、1回の問い合わせは即座に失敗させる
	apiCfg.MaxRetries = 0
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("Vaultクライアントの生成に失敗: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultStore{
		client: client,
		mount:  strings.Trim(cfg.Mount, "/"),
		path:   strings.Trim(cfg.Path, "/"),
		field:  cfg.Field,
	}, nil
}

// CurrentToken は最後に Refresh で読み込んだトークンを返す。
func (s *VaultStore) CurrentToken() (Token, bool) {
	return s.cache.get()
}

// Name は種類名を返す。
func (*VaultStore) Name() string {
	return "vault"
}

// Refresh は Vault からシークレットを読み込む。
// シークレットまたはフィールドが存在しない場合はトークン無しにする。
func (s *VaultStore) Refresh(ctx context.Context) error {
	fullPath := fmt.Sprintf("%s/data/%s", s.mount, s.path)
	secret, err := s.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return fmt.Errorf("Vaultからのシークレット取得に失敗: path=%s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		s.cache.clear()
		return nil
	}

	// KV v2 は "data" キーの下に値を持つ。KV v1 の場合はそのまま使用する
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	token, _ := data[s.field].(string)
	s.cache.set(Token(token))
	return nil
}
