package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

const tokenIssuer = "auth-api"

// JWTCustomClaims содержит пользовательские поля для токена
type JWTCustomClaims struct {
	IdentityID string `json:"id"`
	jwt.RegisteredClaims
}

// JWTService выпускает и проверяет подписанные токены идентичности.
// Ключ один на процесс и не меняется после создания сервиса.
type JWTService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewJWTService создает новый сервис JWT и возвращает ошибку при проблемах
func NewJWTService(secret string, lifetime time.Duration, logger *zap.Logger) (*JWTService, error) {
	if secret == "" {
		return nil, errors.New("jwt signing secret is required")
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("jwt lifetime must be positive, got %s", lifetime)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWTService{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "jwt")),
	}, nil
}

// Issue создает токен для идентичности и возвращает момент его истечения
func (s *JWTService) Issue(identityID string) (string, time.Time, error) {
	if identityID == "" {
		return "", time.Time{}, errors.New("identity id is required to issue a token")
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.lifetime)

	claims := &JWTCustomClaims{
		IdentityID: identityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Debug("token issued", zap.String("identity_id", identityID), zap.Time("expires_at", expiresAt))
	return tokenString, expiresAt, nil
}

// Verify проверяет подпись и срок действия токена и возвращает id идентичности.
// Ошибки: ErrMalformedToken, ErrInvalidSignature, ErrExpiredToken.
func (s *JWTService) Verify(tokenString string) (string, error) {
	claims := &JWTCustomClaims{}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		// Принимаем только HS256: другой alg означает подделку или чужой токен
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil {
		var ve *jwt.ValidationError
		if !errors.As(err, &ve) {
			return "", fmt.Errorf("%w: %v", apperrors.ErrMalformedToken, err)
		}
		switch {
		case ve.Errors&jwt.ValidationErrorMalformed != 0,
			ve.Errors&jwt.ValidationErrorUnverifiable != 0:
			s.logger.Debug("token malformed", zap.Error(err))
			return "", apperrors.ErrMalformedToken
		case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
			s.logger.Debug("token signature invalid")
			return "", apperrors.ErrInvalidSignature
		case ve.Errors&jwt.ValidationErrorExpired != 0:
			s.logger.Debug("token expired", zap.String("identity_id", claims.IdentityID))
			return "", apperrors.ErrExpiredToken
		default:
			s.logger.Debug("token validation failed", zap.Error(err))
			return "", apperrors.ErrMalformedToken
		}
	}

	if !token.Valid || claims.IdentityID == "" || claims.ExpiresAt == nil {
		return "", apperrors.ErrMalformedToken
	}

	return claims.IdentityID, nil
}
