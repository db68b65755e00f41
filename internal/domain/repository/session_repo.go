package repository

import (
	"context"

	"github.com/yourusername/auth-api/internal/domain/entity"
)

// SessionRepository хранит серверные сессии с TTL
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	// Get возвращает apperrors.ErrNotFound для отсутствующей или истекшей сессии
	Get(ctx context.Context, id string) (*entity.Session, error)
	Delete(ctx context.Context, id string) error
}
