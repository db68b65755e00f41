package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/auth-api/internal/config"
)

func TestRedisOptions_Modes(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.RedisConfig
		wantMode   string
		wantAddrs  []string
		wantMaster string
	}{
		{
			name:      "single по умолчанию из addr",
			cfg:       config.RedisConfig{Addr: "localhost:6379", DB: 2},
			wantMode:  RedisModeSingle,
			wantAddrs: []string{"localhost:6379"},
		},
		{
			name:       "sentinel",
			cfg:        config.RedisConfig{Mode: RedisModeSentinel, Addrs: []string{"s1:26379", "s2:26379"}, MasterName: "sessions"},
			wantMode:   RedisModeSentinel,
			wantAddrs:  []string{"s1:26379", "s2:26379"},
			wantMaster: "sessions",
		},
		{
			name:      "cluster из одного адреса",
			cfg:       config.RedisConfig{Mode: RedisModeCluster, Addrs: []string{"c1:7000"}},
			wantMode:  RedisModeCluster,
			wantAddrs: []string{"c1:7000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, opts, err := RedisOptions(tt.cfg)

			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantAddrs, opts.Addrs)
			assert.Equal(t, tt.wantMaster, opts.MasterName)
			assert.Equal(t, tt.cfg.DB, opts.DB)
		})
	}
}

func TestRedisOptions_RetryBackoffInMilliseconds(t *testing.T) {
	_, opts, err := RedisOptions(config.RedisConfig{Addr: "localhost:6379", MaxRetries: 3, MinRetryBackoff: 8, MaxRetryBackoff: 512})

	require.NoError(t, err)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 8*time.Millisecond, opts.MinRetryBackoff)
	assert.Equal(t, 512*time.Millisecond, opts.MaxRetryBackoff)
}

func TestRedisOptions_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
	}{
		{"нет адресов", config.RedisConfig{}},
		{"single с несколькими адресами", config.RedisConfig{Addrs: []string{"a:1", "b:2"}}},
		{"sentinel без master", config.RedisConfig{Addr: "localhost:26379", Mode: RedisModeSentinel}},
		{"cluster с ненулевой базой", config.RedisConfig{Addr: "localhost:7000", Mode: RedisModeCluster, DB: 1}},
		{"неизвестный режим", config.RedisConfig{Addr: "localhost:6379", Mode: "ring"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := RedisOptions(tt.cfg)
			assert.Error(t, err)

			_, err = NewUniversalRedisClient(context.Background(), tt.cfg)
			assert.Error(t, err, "ошибка конфигурации не должна доходить до подключения")
		})
	}
}

func TestNewRedisClient_TypePerMode(t *testing.T) {
	tests := []struct {
		mode string
		cfg  config.RedisConfig
		want interface{}
	}{
		{RedisModeSingle, config.RedisConfig{Addr: "localhost:6379"}, &redis.Client{}},
		{RedisModeSentinel, config.RedisConfig{Mode: RedisModeSentinel, Addr: "localhost:26379", MasterName: "m"}, &redis.Client{}},
		{RedisModeCluster, config.RedisConfig{Mode: RedisModeCluster, Addr: "localhost:7000"}, &redis.ClusterClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			mode, opts, err := RedisOptions(tt.cfg)
			require.NoError(t, err)

			// Клиенты go-redis подключаются лениво, сеть здесь не нужна
			client := newRedisClient(mode, opts)
			defer client.Close()

			assert.IsType(t, tt.want, client)
		})
	}
}

func TestNewUniversalRedisClient_Single(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewUniversalRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got, "значение должно быть видно на сервере")
}

func TestNewUniversalRedisClient_SelectsDB(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewUniversalRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), DB: 3})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "sid", "1", 0).Err())
	mr.Select(3)
	assert.True(t, mr.Exists("sid"), "ключ должен попасть в настроенную базу")
}

func TestNewUniversalRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewUniversalRedisClient(context.Background(), config.RedisConfig{Addr: addr})

	assert.Error(t, err)
}
