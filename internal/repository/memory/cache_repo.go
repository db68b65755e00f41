package memory

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// CacheRepo реализует repository.CacheRepository в памяти процесса.
// Используется, когда Redis не настроен (один экземпляр сервиса).
type CacheRepo struct {
	c *gocache.Cache
}

// NewCacheRepo создает кеш с интервалом очистки cleanupInterval
func NewCacheRepo(defaultTTL, cleanupInterval time.Duration) *CacheRepo {
	return &CacheRepo{c: gocache.New(defaultTTL, cleanupInterval)}
}

// SetJSON сохраняет структуру JSON в кеше
func (r *CacheRepo) SetJSON(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.c.Set(key, data, expiration)
	return nil
}

// GetJSON получает структуру JSON из кеша
func (r *CacheRepo) GetJSON(_ context.Context, key string, dest interface{}) error {
	v, ok := r.c.Get(key)
	if !ok {
		return apperrors.ErrNotFound
	}
	data, _ := v.([]byte)
	return json.Unmarshal(data, dest)
}

// Delete удаляет значение из кеша
func (r *CacheRepo) Delete(_ context.Context, key string) error {
	r.c.Delete(key)
	return nil
}
