package storage

import (
	"context"

	"github.com/arcadelink/relay/internal/model"
)

// Storage defines the interface for the relay's durable state: the
// per-identity session markers used for duplicate-login detection, the
// moderation word list, and the process signing key pair.
type Storage interface {
	// Session marker operations
	SaveSessionMarker(ctx context.Context, id model.PlayerID, marker *model.SessionMarker) error
	GetSessionMarker(ctx context.Context, id model.PlayerID) (*model.SessionMarker, error)
	DeleteSessionMarker(ctx context.Context, id model.PlayerID) error

	// Blocked word operations. Save replaces the list wholesale.
	GetBlockedWords(ctx context.Context) ([]string, error)
	SaveBlockedWords(ctx context.Context, words []string) error

	// Signing key operations
	GetSigningKeyPair(ctx context.Context) (*model.SigningKeyPair, error)
	SaveSigningKeyPair(ctx context.Context, pair *model.SigningKeyPair) error
}
