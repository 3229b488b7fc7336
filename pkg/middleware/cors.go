package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AnyOrigin はすべてのオリジンを許可する指定。
const AnyOrigin = "*"

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// allowedOrigins に AnyOrigin を含めると、すべてのオリジンを許可する。
// OPTIONS リクエスト（プリフライト）は後続の段に渡さず 204 で応答する。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	anyOrigin := false
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == AnyOrigin {
			anyOrigin = true
			continue
		}
		originsSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, listed := originsSet[origin]
			switch {
			case anyOrigin:
				c.Header("Access-Control-Allow-Origin", AnyOrigin)
			case listed:
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			if anyOrigin || listed {
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				c.Header("Access-Control-Max-Age", "86400")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
