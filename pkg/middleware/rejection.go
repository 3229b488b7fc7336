package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RejectionKind はパイプラインの段が処理を中断した理由の種類。
type RejectionKind int

const (
	// KindExtraction は Authorization ヘッダーが無い、または不正であることを表す。
	KindExtraction RejectionKind = iota + 1
	// KindHayStackAuthToken はサーバー側に有効なトークンが無い（または一致しない）ことを表す。
	KindHayStackAuthToken
	// KindNotFound はパスに一致するルートが無いことを表す。
	KindNotFound
	// KindMethodNotAllowed はパスは存在するがメソッドが一致しないことを表す。
	KindMethodNotAllowed
	// KindCanceled はパイプラインの完了前にクライアントが切断したことを表す。
	KindCanceled
	// KindInternal はパニックなど予期しない障害を表す。
	KindInternal
)

// statusClientClosedRequest はクライアントが切断したリクエストに使用するステータスコード。
const statusClientClosedRequest = 499

// String は種類名を返す。
func (k RejectionKind) String() string {
	switch k {
	case KindExtraction:
		return "ExtractionFailure"
	case KindHayStackAuthToken:
		return "HayStackAuthToken"
	case KindNotFound:
		return "RouteNotFound"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	case KindCanceled:
		return "Canceled"
	default:
		return "Internal"
	}
}

// Status は種類に対応するHTTPステータスコードを返す。
func (k RejectionKind) Status() int {
	switch k {
	case KindExtraction:
		return http.StatusBadRequest
	case KindHayStackAuthToken:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// message はクライアントに返す汎用メッセージ。内部の詳細は含めない。
func (k RejectionKind) message() string {
	switch k {
	case KindExtraction:
		return "リクエストが不正です"
	case KindHayStackAuthToken:
		return "認証に失敗しました"
	case KindNotFound:
		return "リソースが見つかりません"
	case KindMethodNotAllowed:
		return "許可されていないメソッドです"
	case KindCanceled:
		return "リクエストがキャンセルされました"
	default:
		return "内部サーバーエラーが発生しました"
	}
}

// Rejection はパイプラインの段が生成する型付きの中断理由。
type Rejection struct {
	// Kind は中断理由の種類。
	Kind RejectionKind
	// Err は内部向けの詳細。レスポンスには含めない。
	Err error
}

// Error はエラーメッセージを返す。
func (r *Rejection) Error() string {
	if r.Err != nil {
		return r.Kind.String() + ": " + r.Err.Error()
	}
	return r.Kind.String()
}

// Unwrap は内部のエラーを返す。
func (r *Rejection) Unwrap() error {
	return r.Err
}

// Reject は Rejection をコンテキストに積み、以降のハンドラを中断する。
func Reject(c *gin.Context, kind RejectionKind, err error) {
	_ = c.Error(&Rejection{Kind: kind, Err: err})
	c.Abort()
}

// RejectionFrom はコンテキストに積まれた最後の Rejection を返す。
func RejectionFrom(c *gin.Context) (*Rejection, bool) {
	for i := len(c.Errors) - 1; i >= 0; i-- {
		var rej *Rejection
		if errors.As(c.Errors[i].Err, &rej) {
			return rej, true
		}
	}
	return nil, false
}

// Rejections は後続の段が積んだ Rejection をHTTPレスポンスに変換するGinミドルウェアを返す。
// Rejection 以外のエラーは 500 として扱う。既にレスポンスが書き込まれている場合は何もしない。
func Rejections(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		rej, ok := RejectionFrom(c)
		if !ok {
			rej = &Rejection{Kind: KindInternal, Err: c.Errors.Last().Err}
		}

		if rej.Kind == KindInternal {
			logger.Error("リクエストの処理に失敗",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(rej),
			)
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(rej.Kind.Status(), gin.H{
			"error": rej.Kind.message(),
			"code":  rej.Kind.String(),
		})
	}
}

// NotFound は一致するルートが無いリクエストを拒否するハンドラを返す。
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		Reject(c, KindNotFound, nil)
	}
}

// MethodNotAllowed はメソッドが一致しないリクエストを拒否するハンドラを返す。
func MethodNotAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		Reject(c, KindMethodNotAllowed, nil)
	}
}
