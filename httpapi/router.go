// Package httpapi mounts the authentication engine behind a chi router:
// the public login/registration/recovery endpoints, the authenticated
// account endpoints, and a health probe. Transport concerns only; all
// policy lives in the engine.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/lumenlms/authcore"
	"github.com/lumenlms/authcore/internal/rate"
	"github.com/lumenlms/authcore/middleware"
)

// RouterConfig tunes the per-IP budgets on the sensitive endpoints.
// Zero-valued fields fall back to the defaults below.
type RouterConfig struct {
	LoginLimit        int           // login + 2FA attempts per window
	LoginWindow       time.Duration //
	RecoveryLimit     int           // code-sending endpoints per window
	RecoveryWindow    time.Duration //
	RateLimitPrefix   string        // redis key namespace, default "authapi"
	DisableRateLimits bool          // for tests
}

func (c *RouterConfig) applyDefaults() {
	if c.LoginLimit == 0 {
		c.LoginLimit = 10
	}
	if c.LoginWindow == 0 {
		c.LoginWindow = 15 * time.Minute
	}
	if c.RecoveryLimit == 0 {
		c.RecoveryLimit = 5
	}
	if c.RecoveryWindow == 0 {
		c.RecoveryWindow = 15 * time.Minute
	}
	if c.RateLimitPrefix == "" {
		c.RateLimitPrefix = "authapi"
	}
}

// NewRouter builds the full /auth surface. redisClient feeds the per-IP
// endpoint limiters; pass DisableRateLimits in tests that hammer endpoints.
func NewRouter(server *Server, engine *authcore.Engine, redisClient redis.UniversalClient, cfg RouterConfig) http.Handler {
	cfg.applyDefaults()

	var loginLimiter, recoveryLimiter *rate.Window
	if !cfg.DisableRateLimits && redisClient != nil {
		loginLimiter = rate.NewWindow(redisClient, cfg.RateLimitPrefix+":login", rate.WindowConfig{
			Limit:  cfg.LoginLimit,
			Window: cfg.LoginWindow,
		})
		recoveryLimiter = rate.NewWindow(redisClient, cfg.RateLimitPrefix+":recovery", rate.WindowConfig{
			Limit:  cfg.RecoveryLimit,
			Window: cfg.RecoveryWindow,
		})
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", server.handleHealthz)

	r.Route("/auth", func(r chi.Router) {
		// Public surface.
		r.Post("/check-email", server.handleCheckEmail)
		r.Post("/refresh", server.handleRefresh)
		r.Post("/logout", server.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(limitByIP(loginLimiter, engine.NoteRateLimited))
			r.Post("/login", server.handleLogin)
			r.Post("/verify-2fa", server.handleVerifyTwoFactor)
			r.Post("/register", server.handleRegister)
			r.Post("/verify-email-code", server.handleVerifyEmailCode)
			r.Post("/reset-password", server.handleResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(limitByIP(recoveryLimiter, engine.NoteRateLimited))
			r.Post("/send-verification", server.handleSendVerification)
			r.Post("/forgot-password", server.handleForgotPassword)
		})

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(engine))
			r.Get("/me", server.handleMe)
			r.Get("/permissions", server.handlePermissions)
			r.Post("/change-password", server.handleChangePassword)
			r.Put("/two-factor", server.handleSetTwoFactor)
			r.Post("/logout-all", server.handleLogoutAll)
		})
	})

	return r
}
