package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/pkg/password"
)

const defaultTimeout = 5 * time.Second

// CredentialStore реализует repository.CredentialStore поверх удаленного сервиса учетных записей.
// Все ответы сервиса обернуты в {"data": ...}.
type CredentialStore struct {
	baseURL string
	client  *http.Client
	hasher  *password.Hasher
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewCredentialStore создает клиента удаленного хранилища
func NewCredentialStore(baseURL string, timeout time.Duration, hasher *password.Hasher, logger *zap.Logger) (*CredentialStore, error) {
	if baseURL == "" {
		return nil, errors.New("user store base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid user store base url: %w", err)
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required for CredentialStore")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		hasher:  hasher,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "remote_credential_store")),
	}, nil
}

type linkRecord struct {
	Provider string    `json:"provider"`
	OAuthID  string    `json:"oauthId"`
	LinkedAt time.Time `json:"linkedAt"`
}

type identityRecord struct {
	ID            string                           `json:"id,omitempty"`
	LegacyID      string                           `json:"_id,omitempty"`
	FirstName     string                           `json:"firstname"`
	LastName      string                           `json:"lastname"`
	Username      string                           `json:"username"`
	Email         string                           `json:"email"`
	Password      string                           `json:"password,omitempty"`
	OAuthAccounts []linkRecord                     `json:"oauthAccounts"`
	SignupDate    time.Time                        `json:"signupDate"`
	Notifications *entity.NotificationPreferences `json:"notifications,omitempty"`
	Subscription  json.RawMessage                  `json:"subscription,omitempty"`
}

// identityID возвращает id записи; старые записи сервиса отдают только _id
func (r *identityRecord) identityID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.LegacyID
}

func (r *identityRecord) toEntity() *entity.Identity {
	identity := &entity.Identity{
		ID:            r.identityID(),
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Username:      r.Username,
		Email:         r.Email,
		PasswordHash:  r.Password,
		SignupDate:    r.SignupDate,
		Notifications: entity.DefaultNotificationPreferences(),
		Subscription:  r.Subscription,
	}
	if r.Notifications != nil {
		identity.Notifications = *r.Notifications
	}
	for _, link := range r.OAuthAccounts {
		identity.ExternalAccounts = append(identity.ExternalAccounts, entity.ExternalAccountLink{
			IdentityID: identity.ID,
			Provider:   link.Provider,
			SubjectID:  link.OAuthID,
			LinkedAt:   link.LinkedAt,
		})
	}
	return identity
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// FindByIdentifier ищет запись по username или email
func (s *CredentialStore) FindByIdentifier(ctx context.Context, identifier string) (*entity.Identity, error) {
	rec, err := s.findRecord(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return rec.toEntity(), nil
}

func (s *CredentialStore) findRecord(ctx context.Context, identifier string) (*identityRecord, error) {
	var rec *identityRecord
	body := map[string]string{"identifier": identifier}
	if err := s.do(ctx, http.MethodPost, "/users/find", body, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

// FindByProviderIdentity ищет по паре (provider, oauthId) или по email
func (s *CredentialStore) FindByProviderIdentity(ctx context.Context, email, provider, subjectID string) (*entity.Identity, error) {
	var rec *identityRecord
	body := map[string]string{
		"email":    entity.NormalizeEmail(email),
		"provider": provider,
		"oauthId":  subjectID,
	}
	if err := s.do(ctx, http.MethodPost, "/users/find/oauth", body, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.ErrNotFound
	}
	return rec.toEntity(), nil
}

// CreateIdentity хеширует пароль и создает запись на удаленном сервисе
func (s *CredentialStore) CreateIdentity(ctx context.Context, in entity.NewIdentity) (*entity.Identity, error) {
	signup := s.now().UTC()
	rec := identityRecord{
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Username:      in.Username,
		Email:         entity.NormalizeEmail(in.Email),
		OAuthAccounts: []linkRecord{},
		SignupDate:    signup,
	}
	prefs := entity.DefaultNotificationPreferences()
	if in.Notifications != nil {
		prefs = *in.Notifications
	}
	rec.Notifications = &prefs

	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		rec.Password = hash
	}
	for _, link := range in.ExternalAccounts {
		linkedAt := link.LinkedAt
		if linkedAt.IsZero() {
			linkedAt = signup
		}
		rec.OAuthAccounts = append(rec.OAuthAccounts, linkRecord{
			Provider: link.Provider,
			OAuthID:  link.SubjectID,
			LinkedAt: linkedAt,
		})
	}

	var created *identityRecord
	if err := s.do(ctx, http.MethodPost, "/users", rec, &created); err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("%w: user store returned empty create response", apperrors.ErrUnavailable)
	}
	return created.toEntity(), nil
}

// VerifyCredentials сверяет пароль с хешем из хранилища.
// Для неизвестного идентификатора выполняется сравнение с заглушкой.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, identifier, plain string) (*entity.Identity, error) {
	rec, err := s.findRecord(ctx, identifier)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = s.hasher.Compare("", plain)
		return nil, apperrors.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	stored := rec.Password
	if stored != "" && !password.IsHash(stored) {
		// Запись без bcrypt-хеша не участвует во входе, сравнение идет с заглушкой
		s.logger.Warn("stored password is not a bcrypt hash", zap.String("identity_id", rec.identityID()))
		stored = ""
	}
	if err := s.hasher.Compare(stored, plain); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return rec.toEntity(), nil
}

// FindByID ищет запись по id
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*entity.Identity, error) {
	if id == "" {
		return nil, apperrors.ErrNotFound
	}
	var rec *identityRecord
	if err := s.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.ErrNotFound
	}
	return rec.toEntity(), nil
}

// do выполняет запрос с таймаутом и переводит ответ в ошибки приложения.
// Повторов нет: таймаут сразу возвращается как ErrUnavailable.
func (s *CredentialStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode user store request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build user store request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("user store request failed",
			zap.String("method", method), zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: user store timeout after %s", apperrors.ErrUnavailable, s.timeout)
		}
		return fmt.Errorf("%w: user store request failed: %v", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read user store response: %v", apperrors.ErrUnavailable, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: malformed user store response: %v", apperrors.ErrUnavailable, err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", apperrors.ErrConflict, messageOr(env.Message, "user already exists"))
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, messageOr(env.Message, "user store rejected request"))
	case resp.StatusCode >= 300:
		s.logger.Warn("user store returned error status",
			zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
		return apperrors.Wrap(apperrors.ErrUnavailable,
			messageOr(env.Message, fmt.Sprintf("user store returned status %d", resp.StatusCode)), nil)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: malformed user store payload: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
