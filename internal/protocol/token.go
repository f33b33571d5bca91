package protocol

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/arcadelink/relay/internal/model"
)

// TokenSize is the width of a routing token on the wire.
const TokenSize = 32

// Token is the per-connection relay address. Other peers use it to
// target tunnel and identity frames, and it doubles as the identifier
// of a match hosted by this connection.
type Token [TokenSize]byte

// NewToken generates a fresh random routing token.
func NewToken() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, fmt.Errorf("generating routing token: %w", err)
	}
	return t, nil
}

// TokenFromString parses the base64 form produced by String.
func TokenFromString(s string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != TokenSize {
		return Token{}, model.ErrMalformedFrame
	}
	var t Token
	copy(t[:], raw)
	return t, nil
}

// String returns the base64 form used everywhere outside the wire format.
func (t Token) String() string {
	return base64.StdEncoding.EncodeToString(t[:])
}
