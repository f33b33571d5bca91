package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arcadelink/relay/internal/api/middleware"
	"github.com/arcadelink/relay/internal/relay"
	"github.com/arcadelink/relay/internal/services/signing"
)

// RelayHandler serves the websocket upgrade and the public-key export.
type RelayHandler struct {
	manager  *relay.Manager
	signer   *signing.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewRelayHandler creates a new relay handler. Upgrades are accepted
// only from the given origins; an empty list allows same-host clients
// (the upgrader default).
func NewRelayHandler(manager *relay.Manager, signer *signing.Service, allowedOrigins []string, logger *slog.Logger) *RelayHandler {
	h := &RelayHandler{
		manager: manager,
		signer:  signer,
		logger:  logger.With(slog.String("component", "api")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
	return h
}

// Connect upgrades the request and runs the connection until it
// closes.
func (h *RelayHandler) Connect(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if err := h.manager.HandleConnection(r.Context(), identity, socket); err != nil {
		h.logger.Error("connection refused",
			slog.String("user_id", string(identity.ID)),
			slog.String("error", err.Error()))
		_ = socket.Close()
	}
}

// PublicKey serves the signature authority's exported public key so
// clients can verify chat signatures out-of-band.
func (h *RelayHandler) PublicKey(w http.ResponseWriter, _ *http.Request) {
	key, err := h.signer.PublicKey()
	if err != nil {
		http.Error(w, "public key unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"public_key": key})
}
