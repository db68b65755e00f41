package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv задает минимальный набор переменных для успешной загрузки
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SUCCESS_REDIRECT_URL", "https://app.example.com/ok")
	t.Setenv("FAILURE_REDIRECT_URL", "https://app.example.com/fail")
	t.Setenv("DB_SERVICE_URL", "http://users.internal")
}

func TestLoad_FromEnvWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port, "Порт по умолчанию должен быть 3000")
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration, "Время жизни токена по умолчанию 24h")
	assert.Equal(t, SessionModeStateless, cfg.Auth.SessionMode)
	assert.Equal(t, TokenDeliveryQuery, cfg.Auth.TokenDelivery)
	assert.Equal(t, RegistrationResponseFull, cfg.Auth.RegistrationResponse)
	assert.True(t, cfg.Auth.LoginCookie)
	assert.Equal(t, UserStoreRemote, cfg.UserStore.Driver)
	assert.Equal(t, "http://users.internal", cfg.UserStore.BaseURL)
	assert.Equal(t, 10, cfg.Password.BcryptCost)
	assert.Equal(t, "file://migrations", cfg.Database.MigrationsSource)
	assert.False(t, cfg.Auth.SessionsEnabled())
	assert.False(t, cfg.Redis.Configured())
}

func TestLoad_EnvOverridesAndLists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_EXPIRATION", "15m")
	t.Setenv("AUTH_SESSION_MODE", SessionModeSession)
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("REDIS_ADDRS", "localhost:6379")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
	assert.True(t, cfg.Auth.SessionsEnabled())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins,
		"Список origins должен разбираться по запятой")
	assert.True(t, cfg.Redis.Configured())
	assert.True(t, cfg.Server.IsProduction())
}

func TestLoad_FromFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("server:\n  port: \"9090\"\nauth:\n  token_delivery: cookie\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, TokenDeliveryCookie, cfg.Auth.TokenDelivery)
}

func TestLoad_MissingFileIsOptional(t *testing.T) {
	setRequiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err, "Отсутствующий файл конфигурации не должен быть ошибкой")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			JWT: JWTConfig{Secret: "s", Expiration: time.Hour},
			Auth: AuthConfig{
				SessionMode:          SessionModeStateless,
				TokenDelivery:        TokenDeliveryQuery,
				RegistrationResponse: RegistrationResponseFull,
				SuccessRedirectURL:   "https://ok",
				FailureRedirectURL:   "https://fail",
			},
			Password:  PasswordConfig{BcryptCost: 10},
			UserStore: UserStoreConfig{Driver: UserStoreRemote, BaseURL: "http://users"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no secret", func(c *Config) { c.JWT.Secret = "" }, "jwt secret is required"},
		{"zero expiration", func(c *Config) { c.JWT.Expiration = 0 }, "jwt expiration must be positive"},
		{"no redirects", func(c *Config) { c.Auth.FailureRedirectURL = "" }, "redirect urls are required"},
		{"session without secret", func(c *Config) { c.Auth.SessionMode = SessionModeSession }, "session secret is required"},
		{"unknown session mode", func(c *Config) { c.Auth.SessionMode = "sticky" }, "unsupported auth session mode"},
		{"unknown delivery", func(c *Config) { c.Auth.TokenDelivery = "fragment" }, "unsupported token delivery"},
		{"unknown registration view", func(c *Config) { c.Auth.RegistrationResponse = "raw" }, "unsupported registration response"},
		{"bcrypt cost too low", func(c *Config) { c.Password.BcryptCost = 2 }, "bcrypt cost"},
		{"remote without url", func(c *Config) { c.UserStore.BaseURL = "" }, "user store base url is required"},
		{"postgres incomplete", func(c *Config) { c.UserStore.Driver = UserStorePostgres }, "database configuration"},
		{"unknown store", func(c *Config) { c.UserStore.Driver = "mongo" }, "unsupported user store driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNotifierDriver(t *testing.T) {
	tests := []struct {
		name string
		cfg  NotificationConfig
		want string
	}{
		{"explicit", NotificationConfig{Driver: NotifierSMTP, BaseURL: "http://n"}, NotifierSMTP},
		{"remote by url", NotificationConfig{BaseURL: "http://n"}, NotifierRemote},
		{"resend by key", NotificationConfig{Resend: ResendConfig{APIKey: "re_x"}}, NotifierResend},
		{"smtp by host", NotificationConfig{SMTP: SMTPConfig{Host: "smtp.example.com"}}, NotifierSMTP},
		{"nothing configured", NotificationConfig{}, NotifierNoop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.NotifierDriver())
		})
	}
}

func TestPostgresConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "auth", SSLMode: "disable"}

	assert.Contains(t, d.PostgresConnectionString(), "dbname=auth")
	assert.Equal(t, "postgres://u:p@db:5432/auth?sslmode=disable", d.PostgresURL())
}
