package testutil

import (
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/arcadelink/relay/internal/model"
)

// NopLogger returns a logger that discards all output.
// Use this in tests to avoid log noise.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Identity returns a throwaway verified identity with a random player
// ID for tests. Dashes are stripped so the ID fits the wire protocol's
// fixed 32-byte identity field without truncation.
func Identity(name string) model.Identity {
	return model.Identity{
		ID:          model.PlayerID(strings.ReplaceAll(uuid.NewString(), "-", "")),
		DisplayName: name,
	}
}
