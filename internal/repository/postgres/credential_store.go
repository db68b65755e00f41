package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourusername/auth-api/internal/domain/entity"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
	"github.com/yourusername/auth-api/pkg/password"
)

const uniqueViolationCode = "23505"

// CredentialStore реализует repository.CredentialStore поверх PostgreSQL
type CredentialStore struct {
	db      *gorm.DB
	hasher  *password.Hasher
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewCredentialStore создает хранилище учетных записей.
// timeout ограничивает каждый запрос к БД; 0 означает без ограничения.
func NewCredentialStore(db *gorm.DB, hasher *password.Hasher, timeout time.Duration, logger *zap.Logger) (*CredentialStore, error) {
	if db == nil {
		return nil, errors.New("gorm db is required for CredentialStore")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required for CredentialStore")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		db:      db,
		hasher:  hasher,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "postgres_credential_store")),
	}, nil
}

func (s *CredentialStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *CredentialStore) first(ctx context.Context, query *gorm.DB) (*entity.Identity, error) {
	var identity entity.Identity
	err := query.WithContext(ctx).Preload("ExternalAccounts", func(db *gorm.DB) *gorm.DB {
		return db.Order("linked_at ASC")
	}).First(&identity).Error
	if err != nil {
		return nil, storeError(err)
	}
	return &identity, nil
}

// FindByIdentifier ищет запись по username или email
func (s *CredentialStore) FindByIdentifier(ctx context.Context, identifier string) (*entity.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.first(ctx, s.db.Where("username = ? OR email = ?", identifier, entity.NormalizeEmail(identifier)))
}

// FindByProviderIdentity ищет сначала по привязке провайдера, затем по email
func (s *CredentialStore) FindByProviderIdentity(ctx context.Context, email, provider, subjectID string) (*entity.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	linked := s.db.Model(&entity.ExternalAccountLink{}).
		Select("identity_id").
		Where("provider = ? AND subject_id = ?", provider, subjectID)

	identity, err := s.first(ctx, s.db.Where("id IN (?)", linked))
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return identity, err
	}

	normalized := entity.NormalizeEmail(email)
	if normalized == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.first(ctx, s.db.Where("email = ?", normalized))
}

// CreateIdentity создает запись вместе с привязками провайдеров в одной транзакции
func (s *CredentialStore) CreateIdentity(ctx context.Context, in entity.NewIdentity) (*entity.Identity, error) {
	identity := &entity.Identity{
		ID:            uuid.NewString(),
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Username:      in.Username,
		Email:         entity.NormalizeEmail(in.Email),
		SignupDate:    s.now().UTC(),
		Notifications: entity.DefaultNotificationPreferences(),
	}
	if in.Notifications != nil {
		identity.Notifications = *in.Notifications
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		identity.PasswordHash = hash
	}
	for _, link := range in.ExternalAccounts {
		if link.LinkedAt.IsZero() {
			link.LinkedAt = identity.SignupDate
		}
		link.IdentityID = identity.ID
		identity.ExternalAccounts = append(identity.ExternalAccounts, link)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(identity).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			s.logger.Info("identity create conflict", zap.String("username", identity.Username))
			return nil, fmt.Errorf("%w: username, email or provider link already exists", apperrors.ErrConflict)
		}
		return nil, storeError(err)
	}
	return identity, nil
}

// VerifyCredentials сверяет пароль; неизвестный идентификатор и неверный пароль неразличимы
func (s *CredentialStore) VerifyCredentials(ctx context.Context, identifier, plain string) (*entity.Identity, error) {
	identity, err := s.FindByIdentifier(ctx, identifier)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = s.hasher.Compare("", plain)
		return nil, apperrors.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	if err := s.hasher.Compare(identity.PasswordHash, plain); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return identity, nil
}

// FindByID ищет запись по id
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*entity.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ErrNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.first(ctx, s.db.Where("id = ?", id))
}

func storeError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: database timeout", apperrors.ErrUnavailable)
	default:
		return fmt.Errorf("%w: database error: %v", apperrors.ErrUnavailable, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
