// Package config はゲートウェイの設定を読み込む。
//
// 設定はデフォルト値、YAMLファイル、環境変数の順に上書きされる。
// コマンドライン引数による上書きは cmd/gateway が行う。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix は環境変数のプレフィックス。
const EnvPrefix = "HAYSTACK_"

// 認証トークンを提供する Store の種類。
const (
	StoreDemo   = "demo"
	StoreStatic = "static"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreVault  = "vault"
	StoreHTTP   = "http"
	StoreJWT    = "jwt"
)

// minJWTSecretLength は HS256 の秘密鍵として受け付ける最小の長さ。
const minJWTSecretLength = 16

// Config はゲートウェイ全体の設定。
type Config struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// Log はログ出力の設定。
	Log LogConfig `yaml:"log"`
	// Store は認証トークンの取得元の設定。
	Store StoreConfig `yaml:"store"`
	// RefreshInterval は外部の Store からトークンを再取得する間隔。
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// StrictTokenMatch が true の場合、Authorization ヘッダーの値と現在のトークンを照合する。
	StrictTokenMatch bool `yaml:"strict_token_match"`
	// CORSOrigins は許可するオリジン。"*" はすべてのオリジンを許可する。
	CORSOrigins []string `yaml:"cors_origins"`
	// ReadHeaderTimeout はリクエストヘッダーの読み取りタイムアウト。
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig は Store の種類と種類ごとの設定。
type StoreConfig struct {
	// Kind は Store の種類（demo / static / file / sqlite / redis / vault / http / jwt）。
	Kind string `yaml:"kind"`
	// Token は static で使用する固定トークン。
	Token string `yaml:"token"`
	// File は file で監視するトークンファイルのパス。
	File string `yaml:"file"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
	Vault  VaultConfig  `yaml:"vault"`
	HTTP   HTTPConfig   `yaml:"http"`
	JWT    JWTConfig    `yaml:"jwt"`
}

// SQLiteConfig は sqlite の設定。
type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig は redis の設定。
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VaultConfig は vault の設定。
type VaultConfig struct {
	Address string        `yaml:"address"`
	Token   string        `yaml:"token"`
	Mount   string        `yaml:"mount"`
	Path    string        `yaml:"path"`
	Field   string        `yaml:"field"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig は http の設定。
type HTTPConfig struct {
	URL         string        `yaml:"url"`
	BearerToken string        `yaml:"bearer_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JWTConfig は jwt の設定。
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	Subject     string        `yaml:"subject"`
	TTL         time.Duration `yaml:"ttl"`
	RenewBefore time.Duration `yaml:"renew_before"`
}

// Default はデフォルト設定を返す。
// トークンを持たない demo Store を使用するため、/hello はすべて 401 になる。
func Default() *Config {
	return &Config{
		Port: "4337",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Kind: StoreDemo,
			SQLite: SQLiteConfig{
				DSN: "file:haystack.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			},
		},
		RefreshInterval:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Load は path のYAMLファイルと環境変数から設定を読み込む。
// path が空の場合はデフォルト値に環境変数だけを適用する。
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv は HAYSTACK_ で始まる環境変数で設定を上書きする。
func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(key, defaultValue string) string {
		return getEnvOr(getenv, EnvPrefix+key, defaultValue)
	}

	c.Port = env("PORT", c.Port)
	c.Log.Level = env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env("LOG_FORMAT", c.Log.Format)

	c.Store.Kind = env("STORE", c.Store.Kind)
	c.Store.Token = env("TOKEN", c.Store.Token)
	c.Store.File = env("TOKEN_FILE", c.Store.File)
	c.Store.SQLite.DSN = env("SQLITE_DSN", c.Store.SQLite.DSN)
	c.Store.Redis.Addr = env("REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = env("REDIS_PASSWORD", c.Store.Redis.Password)
	c.Store.Redis.Key = env("REDIS_KEY", c.Store.Redis.Key)
	c.Store.Vault.Address = env("VAULT_ADDR", c.Store.Vault.Address)
	c.Store.Vault.Token = env("VAULT_TOKEN", c.Store.Vault.Token)
	c.Store.Vault.Path = env("VAULT_PATH", c.Store.Vault.Path)
	c.Store.HTTP.URL = env("TOKEN_URL", c.Store.HTTP.URL)
	c.Store.HTTP.BearerToken = env("TOKEN_URL_BEARER", c.Store.HTTP.BearerToken)
	c.Store.JWT.Secret = env("JWT_SECRET", c.Store.JWT.Secret)

	if v := env("CORS_ORIGINS", ""); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := env("REDIS_DB", ""); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB が不正です: %q: %w", EnvPrefix, v, err)
		}
		c.Store.Redis.DB = db
	}
	if v := env("REFRESH_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREFRESH_INTERVAL が不正です: %q: %w", EnvPrefix, v, err)
		}
		c.RefreshInterval = d
	}
	if v := env("STRICT_TOKEN_MATCH", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSTRICT_TOKEN_MATCH が不正です: %q: %w", EnvPrefix, v, err)
		}
		c.StrictTokenMatch = b
	}
	return nil
}

// Validate は設定値を検証する。問題が複数ある場合はすべてまとめて返す。
func (c *Config) Validate() error {
	var errs []error

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("ポート番号が不正です: %q", c.Port))
	}
	if _, err := zapcore.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("ログレベルが不正です: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("ログ形式が不正です: %q", c.Log.Format))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("トークンの再取得間隔は正の値を指定してください: %s", c.RefreshInterval))
	}
	if len(c.CORSOrigins) == 0 {
		errs = append(errs, errors.New("CORSの許可オリジンを1つ以上指定してください"))
	}

	errs = append(errs, c.Store.validate()...)
	return errors.Join(errs...)
}

func (s StoreConfig) validate() []error {
	var errs []error
	require := func(value, name string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("store.kind=%s では %s の指定が必要です", s.Kind, name))
		}
	}

	switch s.Kind {
	case StoreDemo:
	case StoreStatic:
		require(s.Token, "store.token")
	case StoreFile:
		require(s.File, "store.file")
	case StoreSQLite:
		require(s.SQLite.DSN, "store.sqlite.dsn")
	case StoreRedis:
		require(s.Redis.Addr, "store.redis.addr")
	case StoreVault:
		require(s.Vault.Path, "store.vault.path")
	case StoreHTTP:
		require(s.HTTP.URL, "store.http.url")
	case StoreJWT:
		require(s.JWT.Secret, "store.jwt.secret")
		if s.JWT.Secret != "" && len(s.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, fmt.Errorf("store.jwt.secret は%d文字以上を指定してください", minJWTSecretLength))
		}
	default:
		errs = append(errs, fmt.Errorf("未知の store.kind です: %q", s.Kind))
	}
	return errs
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(getenv func(string) string, key, defaultValue string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
