package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

const keyPrefix = "session:"

// SessionRepo реализует repository.SessionRepository поверх кеша (Redis или память)
type SessionRepo struct {
	cache repository.CacheRepository
	now   func() time.Time
}

// NewSessionRepo создает новый репозиторий сессий
func NewSessionRepo(cache repository.CacheRepository) (*SessionRepo, error) {
	if cache == nil {
		return nil, errors.New("cache repository is required for SessionRepo")
	}
	return &SessionRepo{cache: cache, now: time.Now}, nil
}

// Create сохраняет сессию с TTL до ее истечения
func (r *SessionRepo) Create(ctx context.Context, s *entity.Session) error {
	if s == nil || s.ID == "" || s.IdentityID == "" {
		return fmt.Errorf("%w: session id and identity id are required", apperrors.ErrValidation)
	}
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", apperrors.ErrValidation)
	}
	return r.cache.SetJSON(ctx, keyPrefix+s.ID, s, ttl)
}

// Get возвращает сессию по id
func (r *SessionRepo) Get(ctx context.Context, id string) (*entity.Session, error) {
	var s entity.Session
	if err := r.cache.GetJSON(ctx, keyPrefix+id, &s); err != nil {
		return nil, err
	}
	if s.IsExpired(r.now()) {
		return nil, apperrors.ErrNotFound
	}
	return &s, nil
}

// Delete удаляет сессию
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, keyPrefix+id)
}
