package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/arcadelink/relay/internal/api/handler"
	apimiddleware "github.com/arcadelink/relay/internal/api/middleware"
	"github.com/arcadelink/relay/internal/middleware"
	"github.com/arcadelink/relay/internal/relay"
	"github.com/arcadelink/relay/internal/services/signing"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	Manager        *relay.Manager
	Signer         *signing.Service
	Verifier       apimiddleware.IdentityVerifier
	AllowedOrigins []string
	UpgradeLimiter *middleware.IPRateLimiter

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP handling
	// for rate limiting. Only set it when a reverse proxy in front of
	// the relay strips client-supplied values.
	TrustProxyHeaders bool
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	relayHandler := handler.NewRelayHandler(cfg.Manager, cfg.Signer, cfg.AllowedOrigins, cfg.Logger)

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/relay/public-key", relayHandler.PublicKey).Methods(http.MethodGet)

	ws := r.PathPrefix("/relay/ws").Subrouter()
	if cfg.UpgradeLimiter != nil {
		ws.Use(middleware.RateLimit(cfg.UpgradeLimiter, cfg.TrustProxyHeaders))
	}
	ws.Use(apimiddleware.Auth(cfg.Verifier))
	ws.HandleFunc("", relayHandler.Connect).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
