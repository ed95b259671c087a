package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger はアクセスログをzapで出力するGinミドルウェアを返す。
// 5xxはerror、4xxはwarn、それ以外はinfoで記録する。
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if loc := c.Writer.Header().Get("Location"); loc != "" {
			fields = append(fields, zap.String("location", loc))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("リクエスト", fields...)
		case status >= 400:
			logger.Warn("リクエスト", fields...)
		default:
			logger.Info("リクエスト", fields...)
		}
	}
}
