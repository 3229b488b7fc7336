package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/nao1215/haystack/internal/config"
)

// CLI はコマンドライン引数。指定された値は設定ファイルと環境変数より優先される。
// 各フラグは HAYSTACK_ で始まる環境変数でも指定できる。
type CLI struct {
	Config string `kong:"short='c',type='path',help='設定ファイル（YAML）のパス。'"`
	Port   string `kong:"short='p',help='リッスンポート。'"`
	Store  string `kong:"help='トークンの取得元（demo, static, file, sqlite, redis, vault, http, jwt）。'"`
	Token  string `kong:"help='store=static で使用するトークン。'"`
	Strict bool   `kong:"name='strict-token-match',help='Authorization ヘッダーの値を現在のトークンと照合する。'"`

	Log struct {
		Level  string `kong:"help='ログレベル（debug, info, warn, error）。'"`
		Format string `kong:"help='ログ形式（json, console）。'"`
	} `embed:"" prefix:"log-"`
}

// parseCLI はコマンドライン引数を解析する。
func parseCLI(args []string) (*CLI, error) {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("haystack"),
		kong.Description("Authorization ヘッダーで保護された GET /hello を提供するHTTPゲートウェイ。"),
		kong.UsageOnError(),
		kong.DefaultEnvars("HAYSTACK"),
	)
	if err != nil {
		return nil, fmt.Errorf("コマンドライン解析器の生成に失敗: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("コマンドライン引数の解析に失敗: %w", err)
	}
	return cli, nil
}

// loadConfig は設定ファイルと環境変数を読み込み、コマンドライン引数で上書きして検証する。
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// apply は指定されたフラグだけを cfg に反映する。
func (c *CLI) apply(cfg *config.Config) {
	if c.Port != "" {
		cfg.Port = c.Port
	}
	if c.Store != "" {
		cfg.Store.Kind = c.Store
	}
	if c.Token != "" {
		cfg.Store.Token = c.Token
	}
	if c.Strict {
		cfg.StrictTokenMatch = true
	}
	if c.Log.Level != "" {
		cfg.Log.Level = c.Log.Level
	}
	if c.Log.Format != "" {
		cfg.Log.Format = c.Log.Format
	}
}
