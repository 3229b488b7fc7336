package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを運ぶヘッダー名。
const HeaderRequestID = "X-Request-ID"

// contextKeyRequestID はリクエストIDを格納するコンテキストキー。
const contextKeyRequestID = "haystack.request_id"

// maxRequestIDLength はクライアントから受け取るリクエストIDの長さの上限。
const maxRequestIDLength = 128

// RequestID はリクエストごとにIDを割り当てるGinミドルウェアを返す。
// クライアントが妥当な X-Request-ID を送った場合はそれを使用し、無い場合はUUIDを生成する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom はコンテキストのリクエストIDを返す。
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

// validRequestID は表示可能なASCII文字だけで構成された上限以下の長さのIDかを判定する。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
