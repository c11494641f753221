package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"restaurantintel/backend/internal/cache"
	"restaurantintel/backend/internal/config"
	"restaurantintel/backend/internal/events"
	"restaurantintel/backend/internal/httpapi"
	"restaurantintel/backend/internal/logging"
	"restaurantintel/backend/internal/pos"
	"restaurantintel/backend/internal/service"
	"restaurantintel/backend/internal/store"
	"restaurantintel/backend/internal/store/memory"
	pgstore "restaurantintel/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Format:  cfg.LogFormat,
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "restaurantintel-backend",
	})
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		fatal(logger, "invalid security configuration", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			fatal(logger, "postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pgstore.Migrate(ctx, pg.DB(), logger); err != nil {
			fatal(logger, "apply migrations", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.SeedAdminPassword)
		logger.Info("repository: in-memory")
	}

	var counter cache.Counter = cache.NewMemoryCounter()
	if cfg.RedisAddr != "" {
		redisCounter := cache.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCounter.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, rate limiting in memory", slog.String("error", err.Error()))
			_ = redisCounter.Close()
		} else {
			counter = redisCounter
			closers = append(closers, redisCounter.Close)
			logger.Info("rate limiter: redis")
		}
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaSyncTopic, logger)
		closers = append(closers, publisher.Close)
		logger.Info("events: kafka", slog.String("topic", cfg.KafkaSyncTopic))
	}

	client, err := newPOSClient(cfg.POS, logger)
	if err != nil {
		fatal(logger, "pos client misconfigured", err)
	}

	svc := service.New(client, repo, publisher, logger)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:   cfg.AllowedOrigin,
		Counter:         counter,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Logger:          logger,
	})

	// Sync walks every order page, so writes get more room than the reads.
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("restaurant analytics backend listening",
			slog.String("addr", cfg.Address()),
			slog.String("pos_client_id", logging.Mask(cfg.POS.ClientID)),
			slog.String("timezone", client.Location().String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

func newPOSClient(cfg config.POSConfig, logger *slog.Logger) (*pos.Client, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return pos.New(pos.Credentials{
		ClientID:      cfg.ClientID,
		ClientSecrets: cfg.ClientSecrets(),
		TenantGUID:    cfg.RestaurantGUID,
		BaseURL:       cfg.BaseURL,
		AuthURL:       cfg.AuthURL,
	},
		pos.WithTimeout(cfg.RequestTimeout),
		pos.WithLocation(loc),
		pos.WithPageSize(cfg.PageSize),
		pos.WithLogger(logger),
	)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.DatabaseURL == "" && cfg.SeedAdminPassword != "" {
		if err := validatePasswordStrength(cfg.SeedAdminPassword); err != nil {
			return fmt.Errorf("SEED_ADMIN_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords, a single repeated
// character, and a small list of well-known defaults.
func validatePasswordStrength(password string) error {
	if len(password) < 10 {
		return fmt.Errorf("at least 10 characters required")
	}
	known := map[string]bool{
		"admin12345": true, "password123": true, "1234567890": true,
		"qwertyuiop": true, "changeme123": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}
	if strings.Count(password, password[:1]) == len(password) {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
