package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/service"
	"github.com/auric/api/pkg/health"
	"github.com/auric/api/pkg/middleware"
)

// RouterConfig carries the handler-level settings the router needs.
type RouterConfig struct {
	CookieDomain string
	CookieSecure bool
	CORS         middleware.CORSConfig
}

// NewRouter creates a chi router with all API routes registered.
func NewRouter(
	userService *service.UserService,
	sessionService *service.SessionService,
	otpService *service.OtpService,
	walletService *service.WalletService,
	jwtManager *auth.JWTManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("auric-api"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cookies := cookieWriter{domain: cfg.CookieDomain, secure: cfg.CookieSecure}

	// Token validator that bridges to our internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID:         claims.Subject,
			SessionID:      claims.SessionID,
			SessionVersion: claims.SessionVersion,
			Role:           claims.Role,
			KycStatus:      claims.KycStatus,
		}, nil
	}

	// OTP login endpoints (public)
	authHandler := NewAuthHandler(userService, otpService, cookies, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/otp/send", authHandler.SendCode)
		r.Post("/otp/verify", authHandler.VerifyCode)
	})

	// Refresh and logout authenticate via the refresh token itself.
	sessionHandler := NewSessionHandler(sessionService, cookies, logger)
	r.Route("/api/v1/session", func(r chi.Router) {
		r.Post("/refresh", sessionHandler.Refresh)
		r.Post("/logout", sessionHandler.Logout)
	})

	// Session management endpoints (access token required)
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))
		r.Use(SessionGuard(sessionService))

		r.Get("/", sessionHandler.List)
		r.Delete("/{id}", sessionHandler.Revoke)
		r.Post("/revoke-others", sessionHandler.RevokeOthers)
	})

	// Profile and KYC endpoints (access token required)
	userHandler := NewUserHandler(userService, logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(SessionGuard(sessionService))

		r.Get("/me", userHandler.GetProfile)
		r.Put("/me", userHandler.UpdateProfile)
		r.Post("/me/email", userHandler.SetEmail)
		r.Post("/me/email/verify", userHandler.VerifyEmail)
		r.Post("/me/kyc", userHandler.SubmitKyc)
	})

	// Wallet endpoints (access token required)
	walletHandler := NewWalletHandler(walletService, logger)
	r.Route("/api/v1/wallet", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))
		r.Use(SessionGuard(sessionService))

		r.Get("/", walletHandler.Get)
		r.Post("/deposit", walletHandler.Deposit)
		r.Get("/transactions", walletHandler.ListTransactions)
	})

	return r
}
