package credential

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/haystack/pkg/migration"
)

//go:embed migrations/*.sql
var sqliteMigrations embed.FS

// SQLiteStore は SQLite の auth_tokens テーブルから有効なトークンを取得する Store。
// 失効しておらず期限切れでもないトークンのうち、最も新しいものを現在のトークンとする。
type SQLiteStore struct {
	db    *sql.DB
	cache tokenCache
	now   func() time.Time
}

// OpenSQLite は SQLite データベースを開き、マイグレーションを適用した Store を返す。
// dsn には "file:/data/haystack.db?_pragma=busy_timeout(5000)" や ":memory:" を指定する。
func OpenSQLite(ctx context.Context, dsn string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// :memory: は接続ごとに別のデータベースになるため、接続を1本に固定する
	db.SetMaxOpenConns(1)

	if err := migration.Run(ctx, db, sqliteMigrations, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// CurrentToken は最後に Refresh で読み込んだトークンを返す。
func (s *SQLiteStore) CurrentToken() (Token, bool) {
	return s.cache.get()
}

// Name は種類名を返す。
func (*SQLiteStore) Name() string {
	return "sqlite"
}

// Refresh はデータベースから現在のトークンを読み込む。
func (s *SQLiteStore) Refresh(ctx context.Context) error {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM auth_tokens
		WHERE revoked = 0 AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, s.now().Unix()).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		s.cache.clear()
		return nil
	}
	if err != nil {
		return fmt.Errorf("トークンの取得に失敗: %w", err)
	}
	s.cache.set(Token(token))
	return nil
}

// Put はトークンを登録する。既に存在する場合は失効を解除して有効期限を更新する。
// expiresAt がゼロ値の場合は無期限とする。
func (s *SQLiteStore) Put(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return fmt.Errorf("トークンの登録に失敗: %w", ErrNoToken)
	}

	var expires sql.NullInt64
	if !expiresAt.IsZero() {
		expires = sql.NullInt64{Int64: expiresAt.Unix(), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_tokens (token, revoked, expires_at, created_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			revoked = 0,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, token, expires, s.now().UnixNano()); err != nil {
		return fmt.Errorf("トークンの登録に失敗: %w", err)
	}
	return nil
}

// Revoke はトークンを失効させる。
func (s *SQLiteStore) Revoke(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE auth_tokens SET revoked = 1 WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("トークンの失効に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("トークンの失効に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("トークンの失効に失敗: %w", ErrNoToken)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
