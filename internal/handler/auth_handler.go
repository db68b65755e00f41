package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/handler/dto"
	"github.com/yourusername/auth-api/internal/middleware"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/internal/service"
	"github.com/yourusername/auth-api/pkg/auth/manager"
)

// AuthHandler обрабатывает регистрацию, вход, выход и проверку токенов
type AuthHandler struct {
	authService *service.AuthService
	cookies     *manager.CookieManager
	loginCookie bool
	logger      *zap.Logger
}

// NewAuthHandler создает новый обработчик аутентификации.
// loginCookie: при входе дополнительно выставлять куку auth_token.
func NewAuthHandler(authService *service.AuthService, cookies *manager.CookieManager, loginCookie bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		loginCookie: loginCookie,
		logger:      logger.With(zap.String("component", "auth_handler")),
	}
}

func invalidRequest(err error) error {
	return apperrors.Wrap(apperrors.ErrValidation, "Invalid request data", err)
}

// Register обрабатывает регистрацию локальной учетной записи
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, invalidRequest(err))
		return
	}

	identity, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.UserResponse{User: h.authService.RegistrationView(identity)})
}

// Login проверяет учетные данные и возвращает токен
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, invalidRequest(err))
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	if h.cookies != nil {
		if h.loginCookie {
			h.cookies.SetAuthTokenCookie(c.Writer, result.Token)
		}
		if result.SessionID != "" {
			h.cookies.SetSessionCookie(c.Writer, result.SessionID)
		}
	}

	c.JSON(http.StatusOK, dto.TokenResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.ExpiresAt,
	})
}

// ValidateToken проверяет токен из заголовка Authorization или из тела запроса
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	token, err := middleware.BearerToken(c)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	if token == "" {
		var req dto.ValidateTokenRequest
		// Пустое тело означает отсутствие токена, а не ошибку формата
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.Abort(c, invalidRequest(err))
			return
		}
		token = req.Token
	}

	identity, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UserResponse{User: identity})
}

// Logout удаляет серверную сессию и чистит auth-куки.
// Уже выпущенные токены остаются действительными до истечения срока.
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.cookies != nil {
		if sid, err := h.cookies.GetSessionIDFromCookie(c.Request); err == nil {
			if err := h.authService.Logout(c.Request.Context(), sid); err != nil {
				middleware.Abort(c, err)
				return
			}
		}
		h.cookies.ClearAuthTokenCookie(c.Writer)
		h.cookies.ClearSessionCookie(c.Writer)
		h.cookies.ClearOAuthCookies(c.Writer)
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Logged out"})
}

// Me возвращает запись текущего пользователя. Требует RequireAuth.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		middleware.Abort(c, apperrors.New(apperrors.ErrUnauthorized, "Unauthorized: missing token"))
		return
	}
	c.JSON(http.StatusOK, dto.UserResponse{User: identity})
}
