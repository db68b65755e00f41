package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// ErrorResponse - единый формат ответа об ошибке
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Abort прерывает цепочку и передает ошибку в ErrorHandler
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler превращает ошибки из c.Errors в ответ {status, message}.
// 4xx логируются как warn, 5xx как error.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "error_handler"))

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperrors.HTTPStatus(err)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= 500 {
			logger.Error("request failed", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(status, ErrorResponse{Status: status, Message: apperrors.PublicMessage(err)})
	}
}
