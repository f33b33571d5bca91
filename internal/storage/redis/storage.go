package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Session marker operations

func (s *Storage) SaveSessionMarker(ctx context.Context, id model.PlayerID, marker *model.SessionMarker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionMarkerKey(id), data, s.cfg.SessionMarkerTTL).Err()
}

func (s *Storage) GetSessionMarker(ctx context.Context, id model.PlayerID) (*model.SessionMarker, error) {
	data, err := s.client.Get(ctx, sessionMarkerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}

	var marker model.SessionMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, err
	}
	return &marker, nil
}

func (s *Storage) DeleteSessionMarker(ctx context.Context, id model.PlayerID) error {
	return s.client.Del(ctx, sessionMarkerKey(id)).Err()
}

// Blocked word operations

func (s *Storage) GetBlockedWords(ctx context.Context) ([]string, error) {
	data, err := s.client.Get(ctx, blockedWordsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrWordListNotFound
		}
		return nil, err
	}

	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, err
	}
	return words, nil
}

// SaveBlockedWords replaces the word list wholesale so readers never
// observe a partial update.
func (s *Storage) SaveBlockedWords(ctx context.Context, words []string) error {
	data, err := json.Marshal(words)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, blockedWordsKey(), data, 0).Err()
}

// Signing key operations

func (s *Storage) GetSigningKeyPair(ctx context.Context) (*model.SigningKeyPair, error) {
	data, err := s.client.Get(ctx, signingKeyKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNoSigningKey
		}
		return nil, err
	}

	var pair model.SigningKeyPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *Storage) SaveSigningKeyPair(ctx context.Context, pair *model.SigningKeyPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, signingKeyKey(), data, 0).Err()
}
