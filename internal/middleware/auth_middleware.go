package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/pkg/auth/manager"
)

// Ключи gin-контекста, которые выставляет RequireAuth
const (
	ContextIdentityID = "identity_id"
	ContextIdentity   = "identity"
)

// ErrMalformedAuthHeader возвращается для заголовка Authorization не вида "Bearer <token>"
var ErrMalformedAuthHeader = apperrors.New(apperrors.ErrUnauthorized, "Unauthorized: malformed authorization header")

// PrincipalValidator проверяет токен или серверную сессию
type PrincipalValidator interface {
	ValidateToken(ctx context.Context, token string) (*entity.Identity, error)
	ValidateSession(ctx context.Context, sessionID string) (*entity.Identity, error)
	SessionsEnabled() bool
}

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	validator PrincipalValidator
	cookies   *manager.CookieManager
}

// NewAuthMiddleware создает middleware аутентификации
func NewAuthMiddleware(validator PrincipalValidator, cookies *manager.CookieManager) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, cookies: cookies}
}

// BearerToken извлекает токен из заголовка Authorization.
// Пустой заголовок дает ("", nil), неверный формат дает ErrMalformedAuthHeader.
func BearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", nil
	}

	// Проверяем формат заголовка Bearer {token}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}

// RequireAuth проверяет Bearer-токен, затем куку auth_token, затем куку сессии
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := m.authenticate(c)
		if err != nil {
			Abort(c, err)
			return
		}

		c.Set(ContextIdentityID, identity.ID)
		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) (*entity.Identity, error) {
	ctx := c.Request.Context()

	token, err := BearerToken(c)
	if err != nil {
		return nil, err
	}
	if token != "" {
		return m.validator.ValidateToken(ctx, token)
	}

	if m.cookies != nil {
		if token, err := m.cookies.GetAuthTokenFromCookie(c.Request); err == nil {
			return m.validator.ValidateToken(ctx, token)
		}
		if m.validator.SessionsEnabled() {
			if sid, err := m.cookies.GetSessionIDFromCookie(c.Request); err == nil {
				return m.validator.ValidateSession(ctx, sid)
			}
		}
	}

	// Пустой токен дает "missing token"
	return m.validator.ValidateToken(ctx, "")
}

// IdentityFromContext возвращает запись, выставленную RequireAuth
func IdentityFromContext(c *gin.Context) (*entity.Identity, bool) {
	value, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := value.(*entity.Identity)
	return identity, ok
}
