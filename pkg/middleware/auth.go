package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nao1215/haystack/pkg/credential"
)

// MaxAuthorizationBytes は Authorization ヘッダーとして受け付ける長さの上限。
const MaxAuthorizationBytes = 8 << 10

// headerAuthorization は認証情報を運ぶヘッダー名。
const headerAuthorization = "Authorization"

var (
	// ErrMissingAuthorization は Authorization ヘッダーが無いことを表す。
	ErrMissingAuthorization = errors.New("Authorizationヘッダーが必要です")
	// ErrMalformedAuthorization は Authorization ヘッダーの形式が不正であることを表す。
	ErrMalformedAuthorization = errors.New("Authorizationヘッダーの形式が不正です")
	// ErrNoServerToken はサーバー側に有効なトークンが設定されていないことを表す。
	ErrNoServerToken = errors.New("サーバーに有効なトークンが設定されていません")
	// ErrTokenMismatch はヘッダーの値がサーバー側のトークンと一致しないことを表す。
	ErrTokenMismatch = errors.New("トークンが一致しません")
	// errStateNotInjected は InjectState が先に適用されていないことを表す。
	errStateNotInjected = errors.New("SharedStateが注入されていません")
)

// ExtractAuthorization はリクエストヘッダーから Authorization の値を1つだけ取り出す。
// ヘッダーが無い場合は ErrMissingAuthorization、空・複数・長すぎる・UTF-8 として
// 不正な場合は ErrMalformedAuthorization を返す。
func ExtractAuthorization(h http.Header) (string, error) {
	values := h.Values(headerAuthorization)
	switch len(values) {
	case 0:
		return "", ErrMissingAuthorization
	case 1:
	default:
		return "", fmt.Errorf("%w: 複数指定されています", ErrMalformedAuthorization)
	}

	v := values[0]
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: 値が空です", ErrMalformedAuthorization)
	}
	if len(v) > MaxAuthorizationBytes {
		return "", fmt.Errorf("%w: 長すぎます", ErrMalformedAuthorization)
	}
	if !utf8.ValidString(v) {
		return "", fmt.Errorf("%w: UTF-8として不正です", ErrMalformedAuthorization)
	}
	return v, nil
}

// authConfig は認証フィルタの設定。
type authConfig struct {
	strict bool
	tracer trace.Tracer
}

// AuthOption は認証フィルタの設定を変更する。
type AuthOption func(*authConfig)

// WithStrictMatch はヘッダーの値（"Bearer " 接頭辞は除去）とサーバー側のトークンを
// 定数時間で比較し、一致しない場合も拒否するようにする。
// デフォルトではトークンの有無だけを確認し、値は比較しない。
func WithStrictMatch() AuthOption {
	return func(cfg *authConfig) {
		cfg.strict = true
	}
}

// WithTracer は判定ごとのスパンを記録するトレーサーを設定する。
func WithTracer(tracer trace.Tracer) AuthOption {
	return func(cfg *authConfig) {
		if tracer != nil {
			cfg.tracer = tracer
		}
	}
}

// HayStackAuth は Authorization ヘッダーとサーバー側のトークンを確認するGinミドルウェアを返す。
// InjectState が先に適用されている必要がある。
// 通過した場合は Shared を後続のハンドラに渡し、拒否した場合は Rejection を積んで中断する。
func HayStackAuth(opts ...AuthOption) gin.HandlerFunc {
	cfg := authConfig{tracer: otel.Tracer("haystack/middleware")}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		_, span := cfg.tracer.Start(c.Request.Context(), "haystack.auth")
		state, outcome, rej := cfg.authorize(c.Request.Context(), c)
		span.SetAttributes(attribute.String("haystack.auth.outcome", string(outcome)))
		if rej != nil {
			span.SetStatus(codes.Error, rej.Kind.String())
		}
		span.End()

		setOutcome(c, outcome)
		if rej != nil {
			_ = c.Error(rej)
			c.Abort()
			return
		}

		c.Set(contextKeyAuthorizedState, state)
		c.Next()
	}
}

// authorize は1回の判定を行う。Shared の読み取りロックは CurrentToken の呼び出し中だけ保持される。
func (cfg *authConfig) authorize(ctx context.Context, c *gin.Context) (*credential.Shared, Outcome, *Rejection) {
	if err := ctx.Err(); err != nil {
		return nil, OutcomeCanceled, &Rejection{Kind: KindCanceled, Err: err}
	}

	header, err := ExtractAuthorization(c.Request.Header)
	if err != nil {
		return nil, OutcomeMalformed, &Rejection{Kind: KindExtraction, Err: err}
	}

	state, ok := StateFrom(c)
	if !ok {
		return nil, OutcomeError, &Rejection{Kind: KindInternal, Err: errStateNotInjected}
	}

	token, ok := state.CurrentToken()
	if !ok {
		return nil, OutcomeRejected, &Rejection{Kind: KindHayStackAuthToken, Err: ErrNoServerToken}
	}

	if cfg.strict && !tokenMatches(header, token) {
		return nil, OutcomeRejected, &Rejection{Kind: KindHayStackAuthToken, Err: ErrTokenMismatch}
	}

	return state, OutcomeAuthorized, nil
}

// tokenMatches はヘッダーの値とトークンを定数時間で比較する。
func tokenMatches(header string, token credential.Token) bool {
	presented := header
	if len(presented) > len("Bearer ") && strings.EqualFold(presented[:len("Bearer ")], "Bearer ") {
		presented = presented[len("Bearer "):]
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
