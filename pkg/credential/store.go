package credential

import (
	"errors"
	"sync/atomic"
)

// Token はリクエストヘッダーで運ばれる不透明な認証文字列。
type Token string

// ErrNoToken は取得元に有効なトークンが存在しないことを表す。
var ErrNoToken = errors.New("有効なトークンが存在しません")

// Store は現在有効なトークンを問い合わせるためのインターフェース。
// 戻り値の bool が false の場合、トークンが設定されていないことを表す。
// 実装はブロックしてはならない。I/O が必要な実装は Refresher でキャッシュを更新する。
type Store interface {
	CurrentToken() (Token, bool)
}

// Named はログやヘルスチェックに表示する Store の種類名を返す任意インターフェース。
type Named interface {
	Name() string
}

// NameOf は Store の種類名を返す。Named を実装していない場合は "custom" を返す。
func NameOf(s Store) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "custom"
}

// DemoStore は常にトークン無しを返す Store。
// 起動直後のデフォルトとして使用し、すべての認証付きリクエストを拒否する。
type DemoStore struct{}

// NewDemoStore は DemoStore を生成する。
func NewDemoStore() *DemoStore {
	return &DemoStore{}
}

// CurrentToken は常に false を返す。
func (*DemoStore) CurrentToken() (Token, bool) {
	return "", false
}

// Name は種類名を返す。
func (*DemoStore) Name() string {
	return "demo"
}

// StaticStore は起動時に与えられた固定のトークンを返す Store。
type StaticStore struct {
	token Token
}

// NewStaticStore は固定トークンを返す Store を生成する。
// 空文字列を渡した場合はトークン無しとして扱う。
func NewStaticStore(token string) *StaticStore {
	return &StaticStore{token: Token(token)}
}

// CurrentToken は固定トークンを返す。
func (s *StaticStore) CurrentToken() (Token, bool) {
	if s.token == "" {
		return "", false
	}
	return s.token, true
}

// Name は種類名を返す。
func (*StaticStore) Name() string {
	return "static"
}

// tokenCache はリフレッシュ結果を保持する。
// ポインタの差し替えで更新するため、読み手が中途半端な値を観測することはない。
type tokenCache struct {
	current atomic.Pointer[Token]
}

func (c *tokenCache) get() (Token, bool) {
	t := c.current.Load()
	if t == nil || *t == "" {
		return "", false
	}
	return *t, true
}

func (c *tokenCache) set(t Token) {
	if t == "" {
		c.clear()
		return
	}
	c.current.Store(&t)
}

func (c *tokenCache) clear() {
	c.current.Store(nil)
}
