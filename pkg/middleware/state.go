package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/haystack/pkg/credential"
)

const (
	// contextKeyState は注入された Shared を格納するコンテキストキー。
	contextKeyState = "haystack.state"
	// contextKeyAuthorizedState は認証を通過した Shared を格納するコンテキストキー。
	contextKeyAuthorizedState = "haystack.authorized_state"
	// contextKeyOutcome は認証結果を格納するコンテキストキー。
	contextKeyOutcome = "haystack.auth_outcome"
)

// Outcome は認証フィルタの判定結果。アクセスログとメトリクスが参照する。
type Outcome string

const (
	// OutcomeAuthorized は認証を通過したことを表す。
	OutcomeAuthorized Outcome = "authorized"
	// OutcomeRejected はサーバー側のトークンが無い、または一致しないため拒否したことを表す。
	OutcomeRejected Outcome = "rejected"
	// OutcomeMalformed は Authorization ヘッダーが無い、または不正であることを表す。
	OutcomeMalformed Outcome = "malformed"
	// OutcomeCanceled は判定前にリクエストがキャンセルされたことを表す。
	OutcomeCanceled Outcome = "canceled"
	// OutcomeError は判定の前提が満たされていないことを表す。
	OutcomeError Outcome = "error"
)

// errNotAuthorized は認証フィルタを通過していないリクエストがハンドラに到達したことを表す。
var errNotAuthorized = errors.New("認証フィルタを通過していないリクエストです")

// InjectState は後続の段から Shared を参照できるようにするGinミドルウェアを返す。
func InjectState(state *credential.Shared) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKeyState, state)
		c.Next()
	}
}

// StateFrom は InjectState で注入された Shared を返す。
func StateFrom(c *gin.Context) (*credential.Shared, bool) {
	v, ok := c.Get(contextKeyState)
	if !ok {
		return nil, false
	}
	state, ok := v.(*credential.Shared)
	return state, ok && state != nil
}

// AuthorizedState は認証フィルタを通過した Shared を返す。
func AuthorizedState(c *gin.Context) (*credential.Shared, bool) {
	v, ok := c.Get(contextKeyAuthorizedState)
	if !ok {
		return nil, false
	}
	state, ok := v.(*credential.Shared)
	return state, ok && state != nil
}

// OutcomeFrom は認証フィルタの判定結果を返す。認証対象外のルートでは空文字列を返す。
func OutcomeFrom(c *gin.Context) Outcome {
	v, _ := c.Get(contextKeyOutcome)
	o, _ := v.(Outcome)
	return o
}

func setOutcome(c *gin.Context, o Outcome) {
	c.Set(contextKeyOutcome, o)
}

// StateHandlerFunc は認証済みの Shared だけを受け取るハンドラ。
type StateHandlerFunc func(c *gin.Context, state *credential.Shared)

// WithState は StateHandlerFunc をGinハンドラに変換する。
// 認証フィルタを通過していない場合は内部エラーとして拒否する。
func WithState(h StateHandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := AuthorizedState(c)
		if !ok {
			Reject(c, KindInternal, errNotAuthorized)
			return
		}
		h(c, state)
	}
}
