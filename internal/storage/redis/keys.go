package redis

import (
	"fmt"

	"github.com/arcadelink/relay/internal/model"
)

// Key prefix for all relay data
const keyPrefix = "relay"

// sessionMarkerKey returns the Redis key for a session marker
func sessionMarkerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// blockedWordsKey returns the Redis key for the moderation word list
func blockedWordsKey() string {
	return fmt.Sprintf("%s:blocked_words", keyPrefix)
}

// signingKeyKey returns the Redis key for the signing key pair
func signingKeyKey() string {
	return fmt.Sprintf("%s:signing_key", keyPrefix)
}
