package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Режимы работы сессий
const (
	SessionModeStateless = "stateless"
	SessionModeSession   = "session"
)

// Способы доставки токена после OAuth-входа
const (
	TokenDeliveryQuery  = "query"
	TokenDeliveryCookie = "cookie"
)

// Формат ответа на регистрацию
const (
	RegistrationResponseFull   = "full"
	RegistrationResponsePublic = "public"
)

// Драйверы хранилища пользователей
const (
	UserStoreRemote   = "remote"
	UserStorePostgres = "postgres"
)

// Драйверы уведомлений
const (
	NotifierRemote = "remote"
	NotifierResend = "resend"
	NotifierSMTP   = "smtp"
	NotifierNoop   = "noop"
)

// Config хранит все настройки приложения
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	JWT          JWTConfig
	Auth         AuthConfig
	Session      SessionConfig
	Password     PasswordConfig
	UserStore    UserStoreConfig `mapstructure:"user_store"`
	Database     DatabaseConfig
	Redis        RedisConfig
	Notification NotificationConfig
	OAuth        OAuthConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port            string
	Env             string
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// IsProduction сообщает, запущен ли сервис в production-окружении
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production") || strings.EqualFold(s.Env, "prod")
}

// LogConfig содержит настройки логгера
type LogConfig struct {
	Level string
}

// JWTConfig содержит настройки JWT
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// AuthConfig содержит политику аутентификации
type AuthConfig struct {
	// SessionMode: "stateless" (только bearer-токен) или "session" (токен + серверная сессия)
	SessionMode string `mapstructure:"session_mode"`
	// TokenDelivery: "query" или "cookie" для редиректа после OAuth
	TokenDelivery string `mapstructure:"token_delivery"`
	// RegistrationResponse: "full" (санитизированная запись) или "public" (публичная проекция)
	RegistrationResponse string `mapstructure:"registration_response"`
	LoginCookie          bool   `mapstructure:"login_cookie"`
	SuccessRedirectURL   string `mapstructure:"success_redirect_url"`
	FailureRedirectURL   string `mapstructure:"failure_redirect_url"`
	CookieDomain         string `mapstructure:"cookie_domain"`
}

// SessionsEnabled сообщает, включены ли серверные сессии
func (a AuthConfig) SessionsEnabled() bool {
	return a.SessionMode == SessionModeSession
}

// SessionConfig содержит настройки серверных сессий и auth-cookie
type SessionConfig struct {
	Secret string
	MaxAge time.Duration `mapstructure:"max_age"`
}

// PasswordConfig содержит настройки хеширования паролей
type PasswordConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
	MinLength  int `mapstructure:"min_length"`
}

// UserStoreConfig описывает хранилище учетных записей
type UserStoreConfig struct {
	Driver  string
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
	// MigrationsSource: источник golang-migrate, например file://migrations
	MigrationsSource string `mapstructure:"migrations_source"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// Configured сообщает, задан ли хотя бы один адрес Redis
func (r RedisConfig) Configured() bool {
	return len(r.Addrs) > 0 || r.Addr != ""
}

// NotificationConfig описывает канал уведомлений о регистрации
type NotificationConfig struct {
	Driver  string
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Resend  ResendConfig
	SMTP    SMTPConfig
}

// ResendConfig содержит настройки Resend API
type ResendConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

// SMTPConfig содержит настройки SMTP-отправителя
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string `mapstructure:"from_email"`
	TLSMode   string `mapstructure:"tls_mode"`
}

// OAuthConfig содержит настройки внешних провайдеров
type OAuthConfig struct {
	Google    OAuthProviderConfig
	Microsoft MicrosoftProviderConfig
	GitHub    OAuthProviderConfig `mapstructure:"github"`
}

// OAuthProviderConfig содержит общие параметры OAuth-клиента
type OAuthProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Enabled сообщает, заданы ли учетные данные провайдера
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.RedirectURL != ""
}

// MicrosoftProviderConfig добавляет tenant к параметрам OAuth-клиента
type MicrosoftProviderConfig struct {
	OAuthProviderConfig `mapstructure:",squash"`
	Tenant              string `mapstructure:"tenant"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// PostgresURL формирует URL подключения для golang-migrate
func (d *DatabaseConfig) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

var envBindings = map[string][]string{
	"server.port":             {"SERVER_PORT", "PORT"},
	"server.env":              {"APP_ENV", "NODE_ENV"},
	"server.allowed_origins":  {"ALLOWED_ORIGINS"},
	"server.shutdown_timeout": {"SERVER_SHUTDOWN_TIMEOUT"},
	"log.level":               {"LOG_LEVEL"},

	"jwt.secret":     {"JWT_SECRET"},
	"jwt.expiration": {"JWT_EXPIRATION"},

	"auth.session_mode":          {"AUTH_SESSION_MODE"},
	"auth.token_delivery":        {"AUTH_TOKEN_DELIVERY"},
	"auth.registration_response": {"AUTH_REGISTRATION_RESPONSE"},
	"auth.login_cookie":          {"AUTH_LOGIN_COOKIE"},
	"auth.success_redirect_url":  {"SUCCESS_REDIRECT_URL"},
	"auth.failure_redirect_url":  {"FAILURE_REDIRECT_URL"},
	"auth.cookie_domain":         {"COOKIE_DOMAIN"},

	"session.secret":  {"SESSION_SECRET"},
	"session.max_age": {"SESSION_MAX_AGE"},

	"password.bcrypt_cost": {"BCRYPT_COST"},
	"password.min_length":  {"PASSWORD_MIN_LENGTH"},

	"user_store.driver":   {"USER_STORE_DRIVER"},
	"user_store.base_url": {"DB_SERVICE_URL"},
	"user_store.timeout":  {"USER_STORE_TIMEOUT"},

	"database.host":              {"DATABASE_HOST"},
	"database.port":              {"DATABASE_PORT"},
	"database.user":              {"DATABASE_USER"},
	"database.password":          {"DATABASE_PASSWORD"},
	"database.dbname":            {"DATABASE_DBNAME"},
	"database.sslmode":           {"DATABASE_SSLMODE"},
	"database.migrate":           {"DATABASE_MIGRATE"},
	"database.migrations_source": {"DATABASE_MIGRATIONS_SOURCE"},

	"redis.mode":        {"REDIS_MODE"},
	"redis.addrs":       {"REDIS_ADDRS"},
	"redis.addr":        {"REDIS_ADDR"},
	"redis.password":    {"REDIS_PASSWORD"},
	"redis.db":          {"REDIS_DB"},
	"redis.master_name": {"REDIS_MASTER_NAME"},

	"notification.driver":           {"NOTIFICATION_DRIVER"},
	"notification.base_url":         {"NOTIFICATION_SERVICE_URL"},
	"notification.timeout":          {"NOTIFICATION_TIMEOUT"},
	"notification.resend.api_key":   {"RESEND_API_KEY"},
	"notification.resend.from_email": {"RESEND_FROM_EMAIL"},
	"notification.resend.from_name": {"RESEND_FROM_NAME"},
	"notification.smtp.host":        {"SMTP_HOST"},
	"notification.smtp.port":        {"SMTP_PORT"},
	"notification.smtp.username":    {"SMTP_USERNAME"},
	"notification.smtp.password":    {"SMTP_PASSWORD"},
	"notification.smtp.from_email":  {"SMTP_FROM_EMAIL"},
	"notification.smtp.tls_mode":    {"SMTP_TLS_MODE"},

	"oauth.google.client_id":        {"GOOGLE_CLIENT_ID"},
	"oauth.google.client_secret":    {"GOOGLE_CLIENT_SECRET"},
	"oauth.google.redirect_url":     {"GOOGLE_CALLBACK_URL"},
	"oauth.google.scopes":           {"GOOGLE_SCOPES"},
	"oauth.microsoft.client_id":     {"MICROSOFT_CLIENT_ID"},
	"oauth.microsoft.client_secret": {"MICROSOFT_CLIENT_SECRET"},
	"oauth.microsoft.redirect_url":  {"MICROSOFT_CALLBACK_URL"},
	"oauth.microsoft.scopes":        {"MICROSOFT_SCOPES"},
	"oauth.microsoft.tenant":        {"MICROSOFT_TENANT"},
	"oauth.github.client_id":        {"GITHUB_CLIENT_ID"},
	"oauth.github.client_secret":    {"GITHUB_CLIENT_SECRET"},
	"oauth.github.redirect_url":     {"GITHUB_CALLBACK_URL"},
	"oauth.github.scopes":           {"GITHUB_SCOPES"},
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "3000")
	vip.SetDefault("server.env", "development")
	vip.SetDefault("server.read_timeout", 10)
	vip.SetDefault("server.write_timeout", 10)
	vip.SetDefault("server.shutdown_timeout", 10)
	vip.SetDefault("log.level", "info")

	vip.SetDefault("jwt.expiration", "24h")

	vip.SetDefault("auth.session_mode", SessionModeStateless)
	vip.SetDefault("auth.token_delivery", TokenDeliveryQuery)
	vip.SetDefault("auth.registration_response", RegistrationResponseFull)
	vip.SetDefault("auth.login_cookie", true)

	vip.SetDefault("session.max_age", "24h")

	vip.SetDefault("password.bcrypt_cost", 10)
	vip.SetDefault("password.min_length", 8)

	vip.SetDefault("user_store.driver", UserStoreRemote)
	vip.SetDefault("user_store.timeout", "5s")

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrate", true)
	vip.SetDefault("database.migrations_source", "file://migrations")

	vip.SetDefault("notification.timeout", "5s")
	vip.SetDefault("notification.resend.from_name", "Auth Service")
	vip.SetDefault("notification.smtp.port", 587)
	vip.SetDefault("notification.smtp.tls_mode", "auto")

	vip.SetDefault("oauth.microsoft.tenant", "common")
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	setDefaults(vip)

	// Привязываем переменные окружения ЯВНО
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := vip.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файл необязателен: переменных окружения достаточно
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Списки из переменных окружения приходят одной строкой через запятую
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Redis.Addrs = splitList(cfg.Redis.Addrs)
	cfg.OAuth.Google.Scopes = splitList(cfg.OAuth.Google.Scopes)
	cfg.OAuth.Microsoft.Scopes = splitList(cfg.OAuth.Microsoft.Scopes)
	cfg.OAuth.GitHub.Scopes = splitList(cfg.OAuth.GitHub.Scopes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (check JWT_SECRET env var)")
	}
	if c.JWT.Expiration <= 0 {
		return fmt.Errorf("jwt expiration must be positive (check JWT_EXPIRATION env var)")
	}
	if c.Auth.SuccessRedirectURL == "" || c.Auth.FailureRedirectURL == "" {
		return fmt.Errorf("success and failure redirect urls are required (check SUCCESS_REDIRECT_URL, FAILURE_REDIRECT_URL env vars)")
	}

	switch c.Auth.SessionMode {
	case SessionModeStateless:
	case SessionModeSession:
		if c.Session.Secret == "" {
			return fmt.Errorf("session secret is required in session mode (check SESSION_SECRET env var)")
		}
	default:
		return fmt.Errorf("unsupported auth session mode: %s", c.Auth.SessionMode)
	}

	switch c.Auth.TokenDelivery {
	case TokenDeliveryQuery, TokenDeliveryCookie:
	default:
		return fmt.Errorf("unsupported token delivery: %s", c.Auth.TokenDelivery)
	}

	switch c.Auth.RegistrationResponse {
	case RegistrationResponseFull, RegistrationResponsePublic:
	default:
		return fmt.Errorf("unsupported registration response: %s", c.Auth.RegistrationResponse)
	}

	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", c.Password.BcryptCost)
	}

	switch c.UserStore.Driver {
	case UserStoreRemote:
		if c.UserStore.BaseURL == "" {
			return fmt.Errorf("user store base url is required for remote driver (check DB_SERVICE_URL env var)")
		}
	case UserStorePostgres:
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
		}
	default:
		return fmt.Errorf("unsupported user store driver: %s", c.UserStore.Driver)
	}

	return nil
}

// NotifierDriver возвращает явно заданный драйвер уведомлений или выводит его из настроек
func (n NotificationConfig) NotifierDriver() string {
	if n.Driver != "" {
		return n.Driver
	}
	switch {
	case n.BaseURL != "":
		return NotifierRemote
	case n.Resend.APIKey != "":
		return NotifierResend
	case n.SMTP.Host != "":
		return NotifierSMTP
	default:
		return NotifierNoop
	}
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func isNotExist(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}
