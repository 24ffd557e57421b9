package http

import (
	"net/http"
	"slices"

	"github.com/go-api-accounts/internal/application/account"
	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/transport/http/handler"
	appmiddleware "github.com/go-api-accounts/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Sensitive public endpoints allow 5 requests/second with a burst of 10 per client.
const (
	SensitiveRate  = rate.Limit(5)
	SensitiveBurst = 10
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
		MaxAge:           300,
	}))

	accountSvc := account.NewService(account.ServiceDeps{
		UserRepo:    deps.UserRepo,
		SessionRepo: deps.SessionRepo,
		Tokens:      deps.Tokens,
		Notifier:    deps.Notifier,
		SiteURL:     cfg.SiteURL,
		SessionTTL:  cfg.SessionTTL,
		BcryptCost:  deps.BcryptCost,
	})

	authMw := appmiddleware.Auth(accountSvc)

	sensitiveRL := deps.RateLimiter

	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(accountSvc)
	sessionH := handler.NewSessionHandler(accountSvc, handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	})

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", accountH.Register)
		r.With(sensitiveRL.Limit).Get("/activate/{uidb64}/{token}", accountH.Activate)
		r.With(sensitiveRL.Limit).Post("/activation/resend", accountH.ResendActivation)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Post("/sessions/logout", sessionH.Logout)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Put("/users/me/password", accountH.ChangePassword)

			r.With(appmiddleware.RequireRole(domain.RoleSeller)).Get("/dashboard/seller", handler.Dashboard("seller"))
			r.With(appmiddleware.RequireRole(domain.RoleCustomer)).Get("/dashboard/customer", handler.Dashboard("customer"))
		})
	})

	return r
}
