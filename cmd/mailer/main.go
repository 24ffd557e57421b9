// Command mailer consumes queued activation emails from RabbitMQ and
// delivers them through Mailgun when configured, otherwise SMTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/infrastructure/mailgun"
	"github.com/go-api-accounts/internal/infrastructure/rabbitmq"
	"github.com/go-api-accounts/internal/infrastructure/smtp"
	"github.com/joho/godotenv"
)

const prefetch = 8

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}
	cfg := config.Load()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(cfg); err != nil {
		slog.Error("mailer exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sender rabbitmq.EmailSender
	if cfg.MailgunDomain != "" && cfg.MailgunAPIKey != "" {
		sender = mailgun.NewSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
		slog.Info("mailer using mailgun", "domain", cfg.MailgunDomain)
	} else {
		sender = smtp.NewMailer(cfg)
		slog.Info("mailer using smtp", "host", cfg.SMTPHost)
	}

	conn, ch, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer conn.Close()
	defer ch.Close()

	consumer := rabbitmq.NewConsumer(sender, cfg.NotifyTimeout, cfg.RabbitMQMaxAttempts, cfg.RabbitMQRetryBackoff)
	if err := consumer.Run(ctx, ch, cfg.RabbitMQEmailQueue, prefetch); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	slog.Info("mailer stopped")
	return nil
}
