package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/haystack/pkg/credential"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixedStore はテスト用の Store。
type fixedStore struct {
	token credential.Token
	ok    bool
}

func (f fixedStore) CurrentToken() (credential.Token, bool) {
	return f.token, f.ok
}

// newAuthRouter は GET /hello を認証フィルタで保護したテスト用ルーターを生成する。
// calls はハンドラが実行された回数。
func newAuthRouter(t *testing.T, state *credential.Shared, opts ...AuthOption) (*gin.Engine, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	router := gin.New()
	router.Use(Rejections(nil), Recovery(nil, nil))
	router.GET("/hello",
		InjectState(state),
		HayStackAuth(opts...),
		WithState(func(c *gin.Context, _ *credential.Shared) {
			calls.Add(1)
			c.String(http.StatusOK, "Hello")
		}),
	)
	return router, &calls
}

// serve はルーターにリクエストを送りレスポンスを返す。
func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
