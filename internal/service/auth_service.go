package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/pkg/password"
)

const (
	msgUserExists          = "User already exists"
	msgInvalidCredentials  = "Invalid credentials"
	msgMissingToken        = "Unauthorized: missing token"
	msgTokenExpired        = "Unauthorized: token expired"
	msgInvalidSignature    = "Unauthorized: invalid signature"
	msgMalformedToken      = "Unauthorized: malformed token"
	msgIdentityNotFound    = "Unauthorized: identity not found"
	msgSessionNotFound     = "Unauthorized: session not found"
	msgUserNotFound        = "User not found"
	defaultNotifyTimeout   = 10 * time.Second
	defaultSessionLifetime = 24 * time.Hour
)

// TokenCodec выпускает и проверяет токены идентичности
type TokenCodec interface {
	Issue(identityID string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// PasswordPolicy проверяет пароль при регистрации
type PasswordPolicy interface {
	Validate(password string) error
}

// MinLengthPolicy требует пароль не короче Min символов и не длиннее предела bcrypt в байтах
type MinLengthPolicy struct {
	Min int
}

// Validate реализует PasswordPolicy
func (p MinLengthPolicy) Validate(plain string) error {
	if len([]rune(plain)) < p.Min {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("Password must be at least %d characters", p.Min))
	}
	if len(plain) > password.MaxBytes {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("Password must be at most %d bytes", password.MaxBytes))
	}
	return nil
}

// AuthOptions задает режимы работы AuthService
type AuthOptions struct {
	// PublicRegistration: Register отдает публичную проекцию вместо санитизированной записи
	PublicRegistration bool
	SessionLifetime    time.Duration
	NotifyTimeout      time.Duration
}

// RegisterInput содержит данные для регистрации
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

// LoginResult возвращается локальным и федеративным входом
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  *entity.Identity
	// SessionID пуст, если серверные сессии выключены
	SessionID string
	// Created: запись создана федеративным входом
	Created bool
}

// AuthService реализует регистрацию, вход и проверку токенов
type AuthService struct {
	store    repository.CredentialStore
	resolver *IdentityResolver
	tokens   TokenCodec
	sessions repository.SessionRepository
	notifier Notifier
	policy   PasswordPolicy
	opts     AuthOptions
	metrics  *AuthMetrics
	now      func() time.Time
	pending  sync.WaitGroup
	logger   *zap.Logger
}

// NewAuthService создает сервис аутентификации и возвращает ошибку при проблемах.
// sessions может быть nil: тогда работает только bearer-токен.
func NewAuthService(
	store repository.CredentialStore,
	resolver *IdentityResolver,
	tokens TokenCodec,
	sessions repository.SessionRepository,
	notifier Notifier,
	policy PasswordPolicy,
	opts AuthOptions,
	metrics *AuthMetrics,
	logger *zap.Logger,
) (*AuthService, error) {
	if store == nil {
		return nil, errors.New("CredentialStore is required for AuthService")
	}
	if resolver == nil {
		return nil, errors.New("IdentityResolver is required for AuthService")
	}
	if tokens == nil {
		return nil, errors.New("TokenCodec is required for AuthService")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewNoopNotifier(logger)
	}
	if policy == nil {
		policy = MinLengthPolicy{Min: 8}
	}
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = defaultSessionLifetime
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}

	return &AuthService{
		store:    store,
		resolver: resolver,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		policy:   policy,
		opts:     opts,
		metrics:  metrics,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "auth_service")),
	}, nil
}

// SessionsEnabled сообщает, создаются ли серверные сессии
func (s *AuthService) SessionsEnabled() bool {
	return s.sessions != nil
}

// Register создает локальную учетную запись и возвращает ее санитизированную копию
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (identity *entity.Identity, err error) {
	defer func() { s.metrics.observe("register", err) }()

	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Username = strings.TrimSpace(input.Username)
	input.Email = entity.NormalizeEmail(input.Email)

	if input.FirstName == "" || input.LastName == "" || input.Username == "" || input.Email == "" || input.Password == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "All fields are required")
	}
	if _, parseErr := mail.ParseAddress(input.Email); parseErr != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "Invalid email address", parseErr)
	}
	if err := s.policy.Validate(input.Password); err != nil {
		return nil, err
	}

	// Проверяем username и email параллельно
	var usernameTaken, emailTaken bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		taken, err := s.identifierTaken(gctx, input.Username)
		usernameTaken = taken
		return err
	})
	g.Go(func() error {
		taken, err := s.identifierTaken(gctx, input.Email)
		emailTaken = taken
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to check identity uniqueness: %w", err)
	}
	if usernameTaken || emailTaken {
		return nil, apperrors.New(apperrors.ErrConflict, msgUserExists)
	}

	created, err := s.store.CreateIdentity(ctx, entity.NewIdentity{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Username:  input.Username,
		Email:     input.Email,
		Password:  input.Password,
	})
	if err != nil {
		// Проигранная гонка с параллельной регистрацией
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.Wrap(apperrors.ErrConflict, msgUserExists, err)
		}
		return nil, err
	}

	s.logger.Info("identity registered", zap.String("identity_id", created.ID))
	s.notifyRegistration(ctx, created)

	return created.Sanitized(), nil
}

// RegistrationView возвращает представление записи для ответа на регистрацию
func (s *AuthService) RegistrationView(identity *entity.Identity) interface{} {
	if s.opts.PublicRegistration {
		return identity.PublicProfile()
	}
	return identity
}

func (s *AuthService) identifierTaken(ctx context.Context, identifier string) (bool, error) {
	_, err := s.store.FindByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// notifyRegistration отправляет уведомление в фоне. Ошибки только логируются.
func (s *AuthService) notifyRegistration(ctx context.Context, identity *entity.Identity) {
	notice := RegistrationNotice{
		IdentityID: identity.ID,
		Email:      identity.Email,
		Username:   identity.Username,
		FirstName:  identity.FirstName,
		Consent:    identity.Notifications.Email,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
		defer cancel()

		if err := s.notifier.SendRegistration(notifyCtx, notice); err != nil {
			s.logger.Warn("registration notification failed",
				zap.String("identity_id", notice.IdentityID), zap.Error(err))
		}
	}()
}

// WaitNotifications ждет фоновые уведомления, пока ctx не истек
func (s *AuthService) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login проверяет учетные данные и выпускает токен
func (s *AuthService) Login(ctx context.Context, identifier, password string) (result *LoginResult, err error) {
	defer func() { s.metrics.observe("login", err) }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "Identifier and password are required")
	}

	identity, err := s.store.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			return nil, apperrors.New(apperrors.ErrUnauthorized, msgInvalidCredentials)
		}
		return nil, err
	}

	return s.startSession(ctx, identity, false)
}

// LoginFederated находит или создает запись по профилю провайдера и выпускает токен
func (s *AuthService) LoginFederated(ctx context.Context, profile entity.ProviderProfile) (result *LoginResult, err error) {
	defer func() { s.metrics.observe("federated_login", err) }()

	identity, created, err := s.resolver.Resolve(ctx, profile)
	if err != nil {
		s.logger.Warn("federated identity resolution failed",
			zap.String("provider", profile.Provider), zap.Error(err))
		return nil, err
	}

	result, err = s.startSession(ctx, identity, created)
	if err != nil {
		return nil, err
	}
	s.logger.Info("federated login",
		zap.String("provider", profile.Provider),
		zap.String("identity_id", identity.ID),
		zap.Bool("created", created))
	return result, nil
}

func (s *AuthService) startSession(ctx context.Context, identity *entity.Identity, created bool) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	result := &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  identity.Sanitized(),
		Created:   created,
	}

	if s.sessions != nil {
		now := s.now()
		session := &entity.Session{
			ID:         uuid.NewString(),
			IdentityID: identity.ID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.opts.SessionLifetime),
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		result.SessionID = session.ID
	}

	return result, nil
}

// Logout удаляет серверную сессию, если она есть.
// Выпущенные токены остаются действительными до истечения срока.
func (s *AuthService) Logout(ctx context.Context, sessionID string) (err error) {
	defer func() { s.metrics.observe("logout", err) }()

	if s.sessions == nil || sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ValidateToken проверяет токен и возвращает санитизированную запись владельца
func (s *AuthService) ValidateToken(ctx context.Context, token string) (identity *entity.Identity, err error) {
	defer func() { s.metrics.observe("validate", err) }()

	if token == "" {
		return nil, apperrors.New(apperrors.ErrUnauthorized, msgMissingToken)
	}

	identityID, err := s.tokens.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrExpiredToken):
			return nil, apperrors.New(apperrors.ErrExpiredToken, msgTokenExpired)
		case errors.Is(err, apperrors.ErrInvalidSignature):
			return nil, apperrors.New(apperrors.ErrInvalidSignature, msgInvalidSignature)
		default:
			return nil, apperrors.Wrap(apperrors.ErrMalformedToken, msgMalformedToken, err)
		}
	}

	return s.identityForPrincipal(ctx, identityID)
}

// ValidateSession проверяет серверную сессию и возвращает запись владельца
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*entity.Identity, error) {
	if s.sessions == nil || sessionID == "" {
		return nil, apperrors.New(apperrors.ErrUnauthorized, msgMissingToken)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrUnauthorized, msgSessionNotFound)
		}
		return nil, err
	}

	return s.identityForPrincipal(ctx, session.IdentityID)
}

func (s *AuthService) identityForPrincipal(ctx context.Context, identityID string) (*entity.Identity, error) {
	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrUnauthorized, msgIdentityNotFound)
		}
		return nil, err
	}
	return identity.Sanitized(), nil
}

// GetIdentity возвращает санитизированную запись по id
func (s *AuthService) GetIdentity(ctx context.Context, id string) (*entity.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, msgUserNotFound, err)
		}
		return nil, err
	}
	return identity.Sanitized(), nil
}

// GetPublicProfile возвращает публичную проекцию записи
func (s *AuthService) GetPublicProfile(ctx context.Context, id string) (entity.PublicProfile, error) {
	identity, err := s.GetIdentity(ctx, id)
	if err != nil {
		return entity.PublicProfile{}, err
	}
	return identity.PublicProfile(), nil
}
