package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/middleware"
	"github.com/yourusername/auth-api/internal/oauth"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/internal/service"
	"github.com/yourusername/auth-api/pkg/auth/manager"
)

// FederatedLoginer выполняет вход по профилю внешнего провайдера
type FederatedLoginer interface {
	LoginFederated(ctx context.Context, profile entity.ProviderProfile) (*service.LoginResult, error)
}

// OAuthRedirects задает, куда и как возвращать пользователя после callback
type OAuthRedirects struct {
	SuccessURL string
	FailureURL string
	// TokenDelivery: config.TokenDeliveryQuery или config.TokenDeliveryCookie
	TokenDelivery string
}

// OAuthHandler обрабатывает начало и завершение федеративного входа
type OAuthHandler struct {
	auth      FederatedLoginer
	providers *oauth.Registry
	cookies   *manager.CookieManager
	redirects OAuthRedirects
	logger    *zap.Logger
}

// NewOAuthHandler создает обработчик OAuth
func NewOAuthHandler(auth FederatedLoginer, providers *oauth.Registry, cookies *manager.CookieManager, redirects OAuthRedirects, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthHandler{
		auth:      auth,
		providers: providers,
		cookies:   cookies,
		redirects: redirects,
		logger:    logger.With(zap.String("component", "oauth_handler")),
	}
}

// BeginLogin перенаправляет пользователя к провайдеру
func (h *OAuthHandler) BeginLogin(c *gin.Context) {
	provider, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		middleware.Abort(c, apperrors.Wrap(apperrors.ErrNotFound, "Unknown provider", err))
		return
	}

	state := uuid.NewString()
	verifier := oauth.NewVerifier()
	h.cookies.SetOAuthCookies(c.Writer, state, verifier)

	c.Redirect(http.StatusFound, provider.BeginAuth(state, verifier))
}

// Callback возвращает обработчик callback для конкретного провайдера
func (h *OAuthHandler) Callback(providerName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := h.logger.With(zap.String("provider", providerName))

		provider, err := h.providers.Get(providerName)
		if err != nil {
			h.fail(c, log, err)
			return
		}

		state, verifier, cookieErr := h.cookies.GetOAuthCookies(c.Request)
		h.cookies.ClearOAuthCookies(c.Writer)
		if cookieErr != nil {
			h.fail(c, log, fmt.Errorf("%w: handshake cookies missing", oauth.ErrInvalidCallback))
			return
		}

		profile, err := provider.CompleteAuth(c.Request.Context(), oauth.CallbackParams{
			Code:             c.Query("code"),
			State:            c.Query("state"),
			ExpectedState:    state,
			Verifier:         verifier,
			Error:            c.Query("error"),
			ErrorDescription: c.Query("error_description"),
		})
		if err != nil {
			h.fail(c, log, err)
			return
		}

		result, err := h.auth.LoginFederated(c.Request.Context(), *profile)
		if err != nil {
			h.fail(c, log, err)
			return
		}

		if result.SessionID != "" {
			h.cookies.SetSessionCookie(c.Writer, result.SessionID)
		}

		if h.redirects.TokenDelivery == config.TokenDeliveryCookie {
			h.cookies.SetAuthTokenCookie(c.Writer, result.Token)
			c.Redirect(http.StatusFound, h.redirects.SuccessURL)
			return
		}
		c.Redirect(http.StatusFound, withQuery(h.redirects.SuccessURL, "token", result.Token))
	}
}

func (h *OAuthHandler) fail(c *gin.Context, log *zap.Logger, err error) {
	code := service.FederatedErrorCode(err)
	log.Warn("federated login failed", zap.String("code", code), zap.Error(err))
	c.Redirect(http.StatusFound, withQuery(h.redirects.FailureURL, "error", code))
}

// withQuery добавляет параметр к URL, сохраняя существующие
func withQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
