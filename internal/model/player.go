package model

import (
	"time"
	"unicode/utf8"
)

// PlayerID uniquely identifies a player across the system.
// It is assigned at registration time by the authentication service
// and is stable across connections.
type PlayerID string

// MaxDisplayNameLength is the display name limit enforced at connect time.
// Names are carried in a fixed 16-byte field on the wire.
const MaxDisplayNameLength = 16

// Identity is the already-verified identity attached to an inbound
// upgrade request by the authentication collaborator.
type Identity struct {
	ID          PlayerID
	DisplayName string
}

// ConnectedUser represents one live relay connection.
// It is created on successful upgrade and destroyed on close or kick.
// All mutation happens on the owning connection's read loop.
type ConnectedUser struct {
	ID           PlayerID
	RoutingToken string // base64 form of the 32-byte wire token
	DisplayName  string
	ConnectedAt  time.Time

	// recentChats is the bounded window of recent chat timestamps
	// used for per-connection throttling.
	recentChats []time.Time
}

// NewConnectedUser builds a ConnectedUser for a verified identity.
// Display names longer than the wire field are truncated on a rune
// boundary so the result stays valid UTF-8.
func NewConnectedUser(identity Identity, routingToken string, now time.Time) *ConnectedUser {
	name := truncateName(identity.DisplayName, MaxDisplayNameLength)
	return &ConnectedUser{
		ID:           identity.ID,
		RoutingToken: routingToken,
		DisplayName:  name,
		ConnectedAt:  now,
	}
}

func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// AllowChat records a chat attempt at the given time and reports whether
// it fits within the throttle window (at most limit messages per window).
// Only the owning connection's read loop may call this.
func (u *ConnectedUser) AllowChat(now time.Time, limit int, window time.Duration) bool {
	cutoff := now.Add(-window)
	kept := u.recentChats[:0]
	for _, t := range u.recentChats {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	u.recentChats = kept

	if len(u.recentChats) >= limit {
		return false
	}
	u.recentChats = append(u.recentChats, now)
	return true
}
