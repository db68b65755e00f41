package oauth

import (
	"context"

	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/config"
)

// NewRegistryFromConfig регистрирует провайдеров с заданными учетными данными.
// Провайдер, который не удалось инициализировать, пропускается с предупреждением,
// чтобы локальный вход продолжал работать.
func NewRegistryFromConfig(ctx context.Context, cfg config.OAuthConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewRegistry()

	if cfg.Google.Enabled() {
		if p, err := NewGoogleProvider(ctx, cfg.Google, logger); err != nil {
			logger.Warn("google provider disabled", zap.Error(err))
		} else {
			registry.Register(p)
		}
	}
	if cfg.Microsoft.Enabled() {
		if p, err := NewMicrosoftProvider(ctx, cfg.Microsoft, logger); err != nil {
			logger.Warn("microsoft provider disabled", zap.Error(err))
		} else {
			registry.Register(p)
		}
	}
	if cfg.GitHub.Enabled() {
		if p, err := NewGitHubProvider(cfg.GitHub, logger); err != nil {
			logger.Warn("github provider disabled", zap.Error(err))
		} else {
			registry.Register(p)
		}
	}

	logger.Info("oauth providers registered", zap.Strings("providers", registry.Names()))
	return registry
}
