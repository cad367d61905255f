package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/warrenlibrary/library-backend/internal/broker"
	"github.com/warrenlibrary/library-backend/internal/config"
	"github.com/warrenlibrary/library-backend/internal/database"
	"github.com/warrenlibrary/library-backend/internal/handler"
	"github.com/warrenlibrary/library-backend/internal/journal"
	"github.com/warrenlibrary/library-backend/internal/middleware"
	"github.com/warrenlibrary/library-backend/internal/repository"
	"github.com/warrenlibrary/library-backend/internal/service"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so this one goes to stderr.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitForEnvironment(cfg.Environment); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	logger.Log.Info("Config loaded successfully",
		zap.String("environment", cfg.Environment),
		zap.String("database_driver", cfg.DatabaseDriver),
	)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	activity, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer activity.Close()

	events, limiter, err := newEventsAndLimiter(cfg)
	if err != nil {
		return err
	}
	defer events.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	borrowRepo := repository.NewBorrowRepository(db)

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.StoreTimeout)
	borrowingService := service.NewBorrowingService(bookRepo, borrowRepo, activity, events, cfg.StoreTimeout)

	router := handler.NewRouter(handler.RouterConfig{
		AuthService:      authService,
		BorrowingService: borrowingService,
		Broker:           events,
		AuthLimiter:      limiter,
		AllowedOrigins:   cfg.CORSOrigins,
		IsProduction:     cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; closing
	// the broker ends their subscriptions.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Log.Info("Server stopped")
	return nil
}

// newEventsAndLimiter uses Redis for both the circulation feed and the auth
// rate limiter when REDIS_URL is set, and in-process versions otherwise.
func newEventsAndLimiter(cfg *config.Config) (broker.Broker, middleware.Limiter, error) {
	limits := middleware.RateLimiterConfig{
		MaxRequests: cfg.RateLimitMaxRequests,
		Window:      cfg.RateLimitWindow,
	}

	if cfg.RedisURL == "" {
		logger.Log.Warn("REDIS_URL not set, using in-process broker and rate limiter")
		return broker.NewMemoryBroker(), middleware.NewMemoryRateLimiter(limits), nil
	}

	redisBroker, err := broker.NewRedisBroker(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		redisBroker.Close()
		return nil, nil, err
	}
	logger.Log.Info("Redis connected", zap.String("addr", opt.Addr))

	return redisBroker, middleware.NewRateLimiter(redis.NewClient(opt), limits), nil
}
