package credential

import "sync"

// Shared は有効な Store を1つだけ保持する並行安全なハンドル。
// 読み取りは並行に実行でき、Swap は読み取りと排他になる。
// sync.RWMutex は Lock 待ちがあると新しい RLock を待たせるため、
// 読み取りが続いても差し替えが飢餓状態になることはない。
type Shared struct {
	mu    sync.RWMutex
	store Store
}

// NewShared は Store を保持する Shared を生成する。nil の場合は DemoStore を使用する。
func NewShared(store Store) *Shared {
	if store == nil {
		store = NewDemoStore()
	}
	return &Shared{store: store}
}

// Read は読み取りロックを保持したまま fn を呼び出す。
// fn がパニックしてもロックは解放される。fn の外に Store を持ち出してはならない。
func (s *Shared) Read(fn func(Store)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.store)
}

// CurrentToken は有効な Store にトークンを問い合わせる。
func (s *Shared) CurrentToken() (Token, bool) {
	var (
		token Token
		ok    bool
	)
	s.Read(func(store Store) {
		token, ok = store.CurrentToken()
	})
	return token, ok
}

// Swap は有効な Store を next に差し替え、以前の Store を返す。
// nil を渡した場合は DemoStore に差し替える。
func (s *Shared) Swap(next Store) Store {
	if next == nil {
		next = NewDemoStore()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.store
	s.store = next
	return prev
}

// Name は有効な Store の種類名を返す。
func (s *Shared) Name() string {
	var name string
	s.Read(func(store Store) {
		name = NameOf(store)
	})
	return name
}
