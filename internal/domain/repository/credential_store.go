package repository

import (
	"context"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// CredentialStore абстрагирует хранилище учетных записей.
// Любой метод может вернуть apperrors.ErrUnavailable при сбое хранилища.
type CredentialStore interface {
	// FindByIdentifier ищет запись по username ИЛИ email. Промах: apperrors.ErrNotFound.
	FindByIdentifier(ctx context.Context, identifier string) (*entity.Identity, error)
	// FindByProviderIdentity ищет по паре (provider, subjectID) ИЛИ по email.
	FindByProviderIdentity(ctx context.Context, email, provider, subjectID string) (*entity.Identity, error)
	// CreateIdentity хеширует пароль и создает запись. Дубликат: apperrors.ErrConflict.
	CreateIdentity(ctx context.Context, in entity.NewIdentity) (*entity.Identity, error)
	// VerifyCredentials возвращает apperrors.ErrInvalidCredentials одинаково
	// для неизвестного идентификатора и неверного пароля.
	VerifyCredentials(ctx context.Context, identifier, password string) (*entity.Identity, error)
	// FindByID ищет запись по id. Промах: apperrors.ErrNotFound.
	FindByID(ctx context.Context, id string) (*entity.Identity, error)
}
