package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/auth-api/internal/config"
)

// Режимы подключения к Redis для хранилища сессий
const (
	RedisModeSingle   = "single"
	RedisModeSentinel = "sentinel"
	RedisModeCluster  = "cluster"
)

const redisPingTimeout = 5 * time.Second

// RedisOptions переводит config.RedisConfig в опции go-redis и возвращает итоговый режим.
// Пустой режим означает single.
func RedisOptions(cfg config.RedisConfig) (string, *redis.UniversalOptions, error) {
	addrs := cfg.Addrs
	if len(addrs) == 0 && cfg.Addr != "" {
		addrs = []string{cfg.Addr}
	}
	if len(addrs) == 0 {
		return "", nil, errors.New("redis configuration error: addrs or addr must be provided")
	}

	mode := cfg.Mode
	if mode == "" {
		mode = RedisModeSingle
	}

	opts := &redis.UniversalOptions{
		Addrs:           addrs,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoff) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoff) * time.Millisecond,
	}

	switch mode {
	case RedisModeSingle:
		if len(addrs) > 1 {
			return "", nil, fmt.Errorf("redis single mode expects one address, got %d", len(addrs))
		}
	case RedisModeSentinel:
		if cfg.MasterName == "" {
			return "", nil, errors.New("redis sentinel mode requires master_name")
		}
		opts.MasterName = cfg.MasterName
	case RedisModeCluster:
		// В кластере есть только база 0
		if cfg.DB != 0 {
			return "", nil, fmt.Errorf("redis cluster mode does not support db %d", cfg.DB)
		}
	default:
		return "", nil, fmt.Errorf("unsupported redis mode: %s", mode)
	}
	return mode, opts, nil
}

// newRedisClient создает клиент нужного типа явно, не полагаясь на эвристику NewUniversalClient
// (кластер из одного адреса она приняла бы за single)
func newRedisClient(mode string, opts *redis.UniversalOptions) redis.UniversalClient {
	switch mode {
	case RedisModeSentinel:
		return redis.NewFailoverClient(opts.Failover())
	case RedisModeCluster:
		return redis.NewClusterClient(opts.Cluster())
	default:
		return redis.NewClient(opts.Simple())
	}
}

// NewUniversalRedisClient подключается к Redis для хранения серверных сессий и проверяет соединение
func NewUniversalRedisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	mode, opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := newRedisClient(mode, opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis (mode: %s, addrs: %v): %w", mode, opts.Addrs, err)
	}
	return client, nil
}
