package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"account-portal/internal/config"
	"account-portal/internal/db"
	apihttp "account-portal/internal/http"
	"account-portal/internal/identity"
	"account-portal/internal/metrics"
	"account-portal/internal/profile"
	"account-portal/internal/repository"
	"account-portal/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.AutoMigrate {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	accountRepo := repository.NewPgAccountRepository(pool)
	documentRepo := repository.NewPgDocumentRepository(pool)

	pingers := map[string]apihttp.Pinger{
		"postgres": apihttp.PingerFunc(func(ctx context.Context) error { return db.Ping(ctx, pool) }),
	}

	var tokenStore identity.RefreshTokenStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, refresh tokens kept in memory", zap.Error(err))
		} else {
			tokenStore = identity.NewRedisRefreshTokenStore(redisClient)
			pingers["redis"] = apihttp.PingerFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		}
		cancel()
	}
	tokens := identity.NewTokenService(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL(), tokenStore)

	var providers []identity.FederatedProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, identity.NewGoogleProvider(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	} else {
		logger.Warn("google sign-in not configured")
	}
	backend := identity.NewBackend(logger, accountRepo, tokens, providers...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	profiles := profile.NewDocumentStore(logger, documentRepo)
	accountSvc := service.NewAccountService(logger, profiles, recorder)

	cookies := apihttp.CookieConfig{
		Secure:     cfg.CookieSecure,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}
	accountHandler := apihttp.NewAccountHandler(logger, accountSvc, profiles, backend, recorder, cookies, cfg.ProfileLookupTimeout)
	healthHandler := apihttp.NewHealthHandler(logger, pingers)
	router := apihttp.NewRouter(logger, backend, cookies, accountHandler, healthHandler, metrics.Handler(registry))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
