package model

import "time"

// SessionMarker is the durable record of a live connection, keyed by
// player identity. The authentication service reads it to detect
// concurrent logins; the relay owns its lifecycle.
type SessionMarker struct {
	Token     string    `json:"token"` // routing token of the connection that wrote the marker
	CreatedAt time.Time `json:"created_at"`
}

// SigningKeyPair holds the PEM-encoded halves of the process signing key.
// Both halves are persisted; the public half is what clients fetch to
// verify chat signatures.
type SigningKeyPair struct {
	PrivatePEM []byte `json:"private_pem"`
	PublicPEM  []byte `json:"public_pem"`
}
