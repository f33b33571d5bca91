package memory

import (
	"context"
	"sync"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/storage"
)

// Storage is an in-memory implementation of the storage interface,
// suitable for tests and single-instance development runs. Session
// marker TTLs are not enforced here; markers live until deleted.
type Storage struct {
	mu sync.RWMutex

	sessionMarkers map[model.PlayerID]*model.SessionMarker
	blockedWords   []string
	keyPair        *model.SigningKeyPair
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		sessionMarkers: make(map[model.PlayerID]*model.SessionMarker),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Session marker operations

func (s *Storage) SaveSessionMarker(ctx context.Context, id model.PlayerID, marker *model.SessionMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionMarkers[id] = marker
	return nil
}

func (s *Storage) GetSessionMarker(ctx context.Context, id model.PlayerID) (*model.SessionMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	marker, ok := s.sessionMarkers[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return marker, nil
}

func (s *Storage) DeleteSessionMarker(ctx context.Context, id model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionMarkers, id)
	return nil
}

// Blocked word operations

func (s *Storage) GetBlockedWords(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.blockedWords == nil {
		return nil, model.ErrWordListNotFound
	}
	words := make([]string, len(s.blockedWords))
	copy(words, s.blockedWords)
	return words, nil
}

func (s *Storage) SaveBlockedWords(ctx context.Context, words []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedWords = make([]string, len(words))
	copy(s.blockedWords, words)
	return nil
}

// Signing key operations

func (s *Storage) GetSigningKeyPair(ctx context.Context) (*model.SigningKeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keyPair == nil {
		return nil, model.ErrNoSigningKey
	}
	return s.keyPair, nil
}

func (s *Storage) SaveSigningKeyPair(ctx context.Context, pair *model.SigningKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyPair = pair
	return nil
}
