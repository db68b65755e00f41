package service

import (
	"errors"

	"github.com/yourusername/auth-api/internal/oauth"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// Коды ошибок федеративного входа, передаваемые в failure redirect как ?error=<code>
const (
	FederatedErrAccessDenied    = "access_denied"
	FederatedErrInvalidCallback = "invalid_callback"
	FederatedErrUnknownProvider = "unknown_provider"
	FederatedErrProfile         = "profile_unavailable"
	FederatedErrEmailUnverified = "email_unverified"
	FederatedErrAccount         = "account_error"
	FederatedErrServer          = "server_error"
)

// ErrUnverifiedEmail возвращается резолвером, когда провайдер не подтвердил email,
// а привязки (provider, subject) еще нет
var ErrUnverifiedEmail = errors.New("provider email is not verified")

// FederatedErrorCode сводит ошибку федеративного входа к стабильному коду для редиректа
func FederatedErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, oauth.ErrAccessDenied):
		return FederatedErrAccessDenied
	case errors.Is(err, oauth.ErrInvalidCallback):
		return FederatedErrInvalidCallback
	case errors.Is(err, oauth.ErrUnknownProvider):
		return FederatedErrUnknownProvider
	case errors.Is(err, ErrUnverifiedEmail):
		return FederatedErrEmailUnverified
	case errors.Is(err, oauth.ErrProfileIncomplete), errors.Is(err, apperrors.ErrValidation):
		return FederatedErrProfile
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrNotFound):
		return FederatedErrAccount
	default:
		return FederatedErrServer
	}
}
