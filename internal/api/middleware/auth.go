package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/arcadelink/relay/internal/model"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Trusted headers set by the authenticating gateway in front of the
// relay. The passkey ceremony itself happens there; by the time a
// request reaches us the gateway has already verified the user.
const (
	HeaderUserID      = "X-Relay-User-Id"
	HeaderDisplayName = "X-Relay-Display-Name"
)

// IdentityVerifier extracts and checks the caller's identity.
type IdentityVerifier interface {
	Verify(r *http.Request) (model.Identity, error)
}

// HeaderVerifier trusts gateway-injected identity headers.
type HeaderVerifier struct{}

// Verify reads the identity headers and rejects requests without a
// user ID.
func (HeaderVerifier) Verify(r *http.Request) (model.Identity, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return model.Identity{}, errors.New("missing identity header")
	}
	name := strings.TrimSpace(r.Header.Get(HeaderDisplayName))
	if name == "" {
		name = id
	}
	return model.Identity{ID: model.PlayerID(id), DisplayName: name}, nil
}

// Auth creates authentication middleware
func Auth(verifier IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(r)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the verified identity from the request context
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// MustGetIdentity returns the verified identity or panics
func MustGetIdentity(ctx context.Context) model.Identity {
	identity, ok := GetIdentity(ctx)
	if !ok {
		panic("no identity in context - auth middleware not applied?")
	}
	return identity
}
