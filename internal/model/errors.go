package model

import "errors"

// Common errors used across the application
var (
	// Wire protocol errors
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")

	// Signing errors
	ErrSigningUnavailable = errors.New("signing key not initialized")
	ErrKeyMaterialCorrupt = errors.New("signing key material is corrupt")
	ErrNoSigningKey       = errors.New("no signing key persisted")

	// Moderation errors
	ErrMessageRejected = errors.New("message rejected")

	// Session errors
	ErrSessionNotFound = errors.New("session marker not found")

	// Word list errors
	ErrWordListNotFound = errors.New("blocked word list not found")
)
