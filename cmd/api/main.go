package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/domain/repository"
	"github.com/yourusername/auth-api/internal/handler"
	"github.com/yourusername/auth-api/internal/middleware"
	"github.com/yourusername/auth-api/internal/oauth"
	"github.com/yourusername/auth-api/internal/pkg/logger"
	"github.com/yourusername/auth-api/internal/repository/memory"
	pgRepo "github.com/yourusername/auth-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/auth-api/internal/repository/redis"
	"github.com/yourusername/auth-api/internal/repository/remote"
	"github.com/yourusername/auth-api/internal/repository/session"
	"github.com/yourusername/auth-api/internal/service"
	"github.com/yourusername/auth-api/pkg/auth"
	"github.com/yourusername/auth-api/pkg/auth/manager"
	"github.com/yourusername/auth-api/pkg/database"
	"github.com/yourusername/auth-api/pkg/password"
)

func main() {
	// .env нужен только для локальной разработки
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// Логгер еще не настроен
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(logger.Config{
		Production:  cfg.Server.IsProduction(),
		Level:       cfg.Log.Level,
		ServiceName: "auth-api",
	})
	defer func() { _ = log.Sync() }()

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Контекст с отменой для фоновых горутин и инициализации провайдеров
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hasher, err := password.NewHasher(cfg.Password.BcryptCost)
	if err != nil {
		log.Fatal("failed to initialize password hasher", zap.Error(err))
	}

	store, closeStore := newCredentialStore(cfg, hasher, log)
	defer closeStore()

	sessions, closeSessions := newSessionRepository(ctx, cfg, log)
	defer closeSessions()

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiration, log)
	if err != nil {
		log.Fatal("failed to initialize JWT service", zap.Error(err))
	}

	cookies := manager.NewCookieManager(cfg.Auth.CookieDomain, cfg.Server.IsProduction(), cfg.Session.MaxAge, cfg.Session.Secret)

	notifier, err := service.NewNotifierFromConfig(cfg.Notification, log)
	if err != nil {
		log.Fatal("failed to initialize notifier", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authMetrics, err := service.NewAuthMetrics(registry)
	if err != nil {
		log.Fatal("failed to register auth metrics", zap.Error(err))
	}
	httpMetrics, err := middleware.NewMetrics(registry)
	if err != nil {
		log.Fatal("failed to register http metrics", zap.Error(err))
	}

	resolver, err := service.NewIdentityResolver(store, log)
	if err != nil {
		log.Fatal("failed to initialize identity resolver", zap.Error(err))
	}

	authService, err := service.NewAuthService(
		store,
		resolver,
		jwtService,
		sessions,
		notifier,
		service.MinLengthPolicy{Min: cfg.Password.MinLength},
		service.AuthOptions{
			PublicRegistration: cfg.Auth.RegistrationResponse == config.RegistrationResponsePublic,
			SessionLifetime:    cfg.Session.MaxAge,
			NotifyTimeout:      cfg.Notification.Timeout,
		},
		authMetrics,
		log,
	)
	if err != nil {
		log.Fatal("failed to initialize auth service", zap.Error(err))
	}

	providers := oauth.NewRegistryFromConfig(ctx, cfg.OAuth, log)
	log.Info("oauth providers configured", zap.Strings("providers", providers.Names()))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(httpMetrics.Middleware())
	router.Use(middleware.ErrorHandler(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	} else {
		// Без явного списка разрешаем любой origin, но без credentials
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(httpMetrics.Handler()))

	handler.Routes{
		Auth: handler.NewAuthHandler(authService, cookies, cfg.Auth.LoginCookie, log),
		OAuth: handler.NewOAuthHandler(authService, providers, cookies, handler.OAuthRedirects{
			SuccessURL:    cfg.Auth.SuccessRedirectURL,
			FailureURL:    cfg.Auth.FailureRedirectURL,
			TokenDelivery: cfg.Auth.TokenDelivery,
		}, log),
		Users:     handler.NewUserHandler(authService),
		Guard:     middleware.NewAuthMiddleware(authService, cookies),
		Providers: providers.Names(),
	}.Register(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := authService.WaitNotifications(shutdownCtx); err != nil {
		log.Warn("pending registration notifications dropped", zap.Error(err))
	}

	log.Info("server exited properly")
}

// newCredentialStore выбирает хранилище учетных записей по user_store.driver
func newCredentialStore(cfg *config.Config, hasher *password.Hasher, log *zap.Logger) (repository.CredentialStore, func()) {
	switch cfg.UserStore.Driver {
	case config.UserStorePostgres:
		db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), database.DefaultPoolConfig(), !cfg.Server.IsProduction())
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		if cfg.Database.Migrate {
			if err := database.MigrateDB(db, cfg.Database.MigrationsSource, log); err != nil {
				log.Fatal("failed to migrate database", zap.Error(err))
			}
		}
		store, err := pgRepo.NewCredentialStore(db, hasher, cfg.UserStore.Timeout, log)
		if err != nil {
			log.Fatal("failed to initialize postgres credential store", zap.Error(err))
		}
		log.Info("using postgres credential store", zap.String("host", cfg.Database.Host))
		return store, func() {
			if sqlDB, err := database.GetSQLDB(db); err == nil {
				_ = sqlDB.Close()
			}
		}
	default:
		store, err := remote.NewCredentialStore(cfg.UserStore.BaseURL, cfg.UserStore.Timeout, hasher, log)
		if err != nil {
			log.Fatal("failed to initialize remote credential store", zap.Error(err))
		}
		log.Info("using remote credential store", zap.String("base_url", cfg.UserStore.BaseURL))
		return store, func() {}
	}
}

// newSessionRepository возвращает nil в режиме stateless, иначе Redis или память
func newSessionRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.SessionRepository, func()) {
	if !cfg.Auth.SessionsEnabled() {
		return nil, func() {}
	}

	var (
		cache       repository.CacheRepository
		redisClient redis.UniversalClient
	)
	if cfg.Redis.Configured() {
		client, err := database.NewUniversalRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		redisClient = client
		cache, err = redisRepo.NewCacheRepo(client)
		if err != nil {
			log.Fatal("failed to initialize redis cache", zap.Error(err))
		}
		log.Info("server sessions stored in redis")
	} else {
		cache = memory.NewCacheRepo(cfg.Session.MaxAge, 10*time.Minute)
		log.Warn("redis is not configured, server sessions are kept in process memory")
	}

	sessions, err := session.NewSessionRepo(cache)
	if err != nil {
		log.Fatal("failed to initialize session repository", zap.Error(err))
	}
	return sessions, func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
}
