// Package registry tracks the users connected to this instance,
// indexed both by stable player identity and by routing token.
package registry

import (
	"sync"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
)

// Session is a live connection as seen by the registry and by frame
// handlers. The relay's connection type implements it; tests use fakes.
type Session interface {
	// UserID is the stable player identity behind the connection.
	UserID() model.PlayerID
	// Token is the connection's routing token.
	Token() protocol.Token
	// Send queues an outbound frame. Best-effort: sending to a closed
	// or absent socket is a no-op, never an error.
	Send(frame []byte)
	// ForceClose closes the connection after delivering reason as a
	// notification, as for a fleet-wide kick.
	ForceClose(reason string)
}

// Registry is the per-instance dual index of connected users.
// One mutex covers all operations because Register performs a compound
// check-then-update across both indexes.
type Registry struct {
	mu      sync.Mutex
	byID    map[model.PlayerID]Session
	byToken map[protocol.Token]Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[model.PlayerID]Session),
		byToken: make(map[protocol.Token]Session),
	}
}

// Register inserts the session under both indexes. If a different
// session already holds the same identity, its token entry is evicted
// so peers addressing the old token get a not-found outcome; closing
// the superseded socket stays the connection manager's job.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[s.UserID()]; ok && prev != s {
		delete(r.byToken, prev.Token())
	}
	r.byID[s.UserID()] = s
	r.byToken[s.Token()] = s
}

// Unregister removes both index entries for this exact session.
// A session that has already been superseded is left alone.
func (r *Registry) Unregister(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byID[s.UserID()]; ok && cur == s {
		delete(r.byID, s.UserID())
	}
	if cur, ok := r.byToken[s.Token()]; ok && cur == s {
		delete(r.byToken, s.Token())
	}
}

// FindByID resolves a session by player identity.
func (r *Registry) FindByID(id model.PlayerID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// FindByToken resolves a session by routing token.
func (r *Registry) FindByToken(token protocol.Token) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	return s, ok
}

// All snapshots every session registered by identity, in no particular
// order. Used for instance-local broadcasts such as chat fan-out.
func (r *Registry) All() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Count returns the number of identities connected to this instance.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
