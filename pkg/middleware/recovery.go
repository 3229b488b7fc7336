package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニックはスタックトレースとともにログに出力し、KindInternal の Rejection として
// Rejections に引き渡す。1つのリクエストの失敗でサーバーが停止することはない。
// metrics が nil の場合はパニック数を記録しない。
func Recovery(logger *zap.Logger, metrics *Metrics) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("パニックから回復",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				metrics.panicRecovered()
				Reject(c, KindInternal, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}
