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

	"github.com/go-api-accounts/internal/application/activation"
	"github.com/go-api-accounts/internal/application/notification"
	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/infrastructure/dynamo"
	"github.com/go-api-accounts/internal/infrastructure/mailgun"
	"github.com/go-api-accounts/internal/infrastructure/memory"
	"github.com/go-api-accounts/internal/infrastructure/postgres"
	"github.com/go-api-accounts/internal/infrastructure/rabbitmq"
	"github.com/go-api-accounts/internal/infrastructure/redis"
	"github.com/go-api-accounts/internal/infrastructure/smtp"
	transporthttp "github.com/go-api-accounts/internal/transport/http"
	"github.com/go-api-accounts/internal/transport/http/middleware"
	"github.com/joho/godotenv"
)

const devActivationSecret = "dev-only-activation-secret"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDevelopment() {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret := cfg.ActivationSecret
	if secret == "" {
		if !cfg.IsDevelopment() {
			return errors.New("ACTIVATION_SECRET is required outside development")
		}
		slog.Warn("ACTIVATION_SECRET not set, using development key")
		secret = devActivationSecret
	}
	tokens, err := activation.NewService([]byte(secret), cfg.ActivationTokenTTL)
	if err != nil {
		return fmt.Errorf("activation tokens: %w", err)
	}

	deps := &transporthttp.Deps{Tokens: tokens}
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if err := wireStores(ctx, cfg, deps, &cleanup); err != nil {
		return err
	}

	sender, closeSender, err := newSender(cfg)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, closeSender)

	dispatcher := notification.NewDispatcher(sender, cfg.NotifyWorkers, cfg.NotifyQueueSize, cfg.NotifyTimeout)
	dispatcher.Start(context.WithoutCancel(ctx))
	deps.Notifier = dispatcher

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	limiter := middleware.NewRateLimiter(transporthttp.SensitiveRate, transporthttp.SensitiveBurst,
		middleware.TrustProxies(proxies))
	defer limiter.Stop()
	deps.RateLimiter = limiter

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"store", cfg.StoreDriver, "sessions", cfg.SessionDriver, "notify", cfg.NotifyDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	// Pending activation emails are delivered before exit.
	dispatcher.Close()
	slog.Info("server stopped")
	return nil
}

func wireStores(ctx context.Context, cfg *config.Config, deps *transporthttp.Deps, cleanup *[]func()) error {
	needDynamo := cfg.StoreDriver == "dynamo" || cfg.SessionDriver == "dynamo"
	var dynamoClient dynamo.API
	if needDynamo {
		c, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("dynamo client: %w", err)
		}
		dynamo.Bootstrap(ctx, c, cfg.DynamoTables)
		dynamoClient = c
	}

	switch cfg.StoreDriver {
	case "dynamo":
		deps.UserRepo = dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns), int32(cfg.PGMinConns), cfg.PGMaxConnLife)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		*cleanup = append(*cleanup, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
		deps.UserRepo = postgres.NewUserRepo(pool)
	case "memory":
		deps.UserRepo = memory.NewUserStore()
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.SessionDriver {
	case "dynamo":
		deps.SessionRepo = dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions)
	case "redis":
		rdb, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		*cleanup = append(*cleanup, func() { _ = rdb.Close() })
		deps.SessionRepo = redis.NewSessionStore(rdb)
	case "memory":
		deps.SessionRepo = memory.NewSessionStore()
	default:
		return fmt.Errorf("unknown SESSION_DRIVER %q", cfg.SessionDriver)
	}
	return nil
}

func newSender(cfg *config.Config) (notification.Sender, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.NotifyDriver) {
	case "smtp":
		return smtp.NewMailer(cfg), noop, nil
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" {
			return nil, nil, errors.New("MAILGUN_DOMAIN and MAILGUN_API_KEY are required for NOTIFY_DRIVER=mailgun")
		}
		return mailgun.NewSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), noop, nil
	case "rabbitmq":
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq publisher: %w", err)
		}
		return p, p.Close, nil
	case "log":
		return notification.LogSender{}, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.NotifyDriver)
	}
}
