package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/handler/dto"
	"github.com/yourusername/auth-api/internal/middleware"
	"github.com/yourusername/auth-api/internal/service"
)

// UserIDContextKey - ключ, под которым ExtractIDParam сохраняет id пользователя
const UserIDContextKey = "user_id"

// UserHandler отдает публичные профили
type UserHandler struct {
	authService *service.AuthService
}

// NewUserHandler создает обработчик пользователей
func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// GetPublicProfile возвращает публичную проекцию записи по id
func (h *UserHandler) GetPublicProfile(c *gin.Context) {
	id := c.GetString(UserIDContextKey)
	if id == "" {
		id = c.Param("id")
	}

	profile, err := h.authService.GetPublicProfile(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UserResponse{User: profile})
}
