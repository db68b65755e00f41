package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

const maxIDParamLength = 128

// ExtractIDParam создает middleware для извлечения и валидации строкового id из URL.
// paramName - имя параметра в URL (например, "id").
// contextKey - ключ, под которым значение будет сохранено в контексте Gin.
func ExtractIDParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param(paramName))
		if id == "" || len(id) > maxIDParamLength || strings.ContainsAny(id, "/ ") {
			Abort(c, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("Invalid %s", paramName)))
			return
		}
		c.Set(contextKey, id)
		c.Next()
	}
}
