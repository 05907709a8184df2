package main

import (
	"log"
	"net/http"

	httphandlers "nivesh/internal/interfaces/http"
	"nivesh/internal/shared/config"
	"nivesh/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Provider webhooks. No session auth: the detached JWS signature over
	// the raw body is the trust anchor.
	mux.HandleFunc("POST /consent-notification", deps.WebhookHandler.HandleConsentNotification)
	mux.HandleFunc("POST /fi-data-notification", deps.WebhookHandler.HandleFIDataNotification)

	// Public auth routes
	mux.HandleFunc("/api/auth/register", deps.AuthHandler.HandleRegister)
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/users/me", authMiddleware(http.HandlerFunc(deps.UserHandler.HandleMe)))

	mux.Handle("/api/consents", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandleConsents)))
	mux.Handle("/api/consents/{handle}", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandleConsentByHandle)))
	mux.Handle("/api/consents/{handle}/revoke", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandleRevoke)))
	mux.Handle("/api/consents/{handle}/poll", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandlePoll)))
	mux.Handle("/api/consents/{handle}/events", authMiddleware(http.HandlerFunc(deps.ConsentHandler.HandleEvents)))

	mux.Handle("/api/accounts", authMiddleware(http.HandlerFunc(deps.PortfolioHandler.HandleAccounts)))
	mux.Handle("/api/accounts/{id}/holdings", authMiddleware(http.HandlerFunc(deps.PortfolioHandler.HandleAccountHoldings)))
	mux.Handle("/api/accounts/{id}/transactions", authMiddleware(http.HandlerFunc(deps.PortfolioHandler.HandleAccountTransactions)))

	mux.Handle("/api/notifications", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleNotifications)))
	mux.Handle("/api/notifications/{id}/open", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleOpen)))

	// Apply global middleware
	handler := middleware.Tracing(middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux)))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
