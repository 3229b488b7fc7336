package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	token Token
	ok    bool
}

func (f fakeStore) CurrentToken() (Token, bool) {
	return f.token, f.ok
}

// TestDemoStore はDemoStoreが常にトークン無しを返すことを検証する。
func TestDemoStore(t *testing.T) {
	t.Parallel()

	token, ok := NewDemoStore().CurrentToken()
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Equal(t, "demo", NameOf(NewDemoStore()))
}

// TestStaticStore はStaticStoreを検証する。
func TestStaticStore(t *testing.T) {
	t.Parallel()

	t.Run("固定トークンが返ること", func(t *testing.T) {
		t.Parallel()

		token, ok := NewStaticStore("xyz").CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, Token("xyz"), token)
	})

	t.Run("空文字列はトークン無しとして扱われること", func(t *testing.T) {
		t.Parallel()

		_, ok := NewStaticStore("").CurrentToken()
		assert.False(t, ok)
	})
}

// TestNameOf はNamedを実装しないStoreの種類名を検証する。
func TestNameOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "custom", NameOf(fakeStore{}))
	assert.Equal(t, "static", NameOf(NewStaticStore("a")))
}

// TestTokenCache はtokenCacheを検証する。
func TestTokenCache(t *testing.T) {
	t.Parallel()

	var c tokenCache
	_, ok := c.get()
	assert.False(t, ok, "初期状態はトークン無し")

	c.set("abc")
	token, ok := c.get()
	assert.True(t, ok)
	assert.Equal(t, Token("abc"), token)

	c.set("")
	_, ok = c.get()
	assert.False(t, ok, "空文字列の設定はクリアと同じ")

	c.set("def")
	c.clear()
	_, ok = c.get()
	assert.False(t, ok)
}
