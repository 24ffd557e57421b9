package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("ACTIVATION_TOKEN_TTL", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TRUSTED_PROXIES", "")
	t.Setenv("RABBITMQ_MAX_ATTEMPTS", "")

	cfg := Load()
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, "dynamo", cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.ActivationTokenTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Equal(t, 5, cfg.RabbitMQMaxAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("SITE_URL", "https://shop.example.com/")
	t.Setenv("ACTIVATION_TOKEN_TTL", "2h")
	t.Setenv("NOTIFY_WORKERS", "5")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg := Load()
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "https://shop.example.com", cfg.SiteURL)
	assert.Equal(t, 2*time.Hour, cfg.ActivationTokenTTL)
	assert.Equal(t, 5, cfg.NotifyWorkers)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("NOTIFY_WORKERS", "many")
	t.Setenv("SESSION_TTL", "forever")
	t.Setenv("COOKIE_SECURE", "maybe")

	cfg := Load()
	assert.Equal(t, 2, cfg.NotifyWorkers)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.CookieSecure)
}
