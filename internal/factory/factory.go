package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/arcadelink/relay/internal/bus"
	"github.com/arcadelink/relay/internal/dependencies/clock"
	"github.com/arcadelink/relay/internal/registry"
	"github.com/arcadelink/relay/internal/relay"
	"github.com/arcadelink/relay/internal/services/moderation"
	"github.com/arcadelink/relay/internal/services/signing"
	"github.com/arcadelink/relay/internal/storage"
	"github.com/arcadelink/relay/internal/storage/memory"
	redisstorage "github.com/arcadelink/relay/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	Storage  storage.Storage
	Bus      bus.Bus
	Clock    clock.Clock
	Registry *registry.Registry

	Signer    *signing.Service
	Moderator *moderation.Service
	Manager   *relay.Manager
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis").
	// The bus follows the choice: the in-process bus with memory
	// storage, Redis pub/sub with Redis storage.
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// RelayConfig holds the connection manager's tunables.
	RelayConfig relay.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	var store storage.Storage
	var b bus.Bus
	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
		b = bus.NewMemoryBus(logger)
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
		redisBus, err := bus.NewRedisBus(cfg.RedisConfig.URL, logger)
		if err != nil {
			return nil, err
		}
		b = redisBus
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	return newWithDependencies(store, b, clock.New(), cfg.RelayConfig, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, b bus.Bus, clk clock.Clock, relayCfg relay.Config, logger *slog.Logger) *App {
	reg := registry.New()
	signer := signing.New(store, logger)
	moderator := moderation.New(store, signer, logger)
	manager := relay.NewManager(relayCfg, reg, store, b, moderator, clk, logger)

	return &App{
		Storage:   store,
		Bus:       b,
		Clock:     clk,
		Registry:  reg,
		Signer:    signer,
		Moderator: moderator,
		Manager:   manager,
	}
}

// Initialize prepares the services that need startup work: the signing
// key pair is loaded or generated, the blocked-word cache is primed,
// and the manager's bus subscriptions go live. A missing word list is
// not fatal; a corrupt signing key is.
func (a *App) Initialize(ctx context.Context, logger *slog.Logger) error {
	if err := a.Signer.Initialize(ctx); err != nil {
		return err
	}
	if err := a.Moderator.Refresh(ctx); err != nil {
		logger.Warn("could not load blocked words", slog.String("error", err.Error()))
	}
	return a.Manager.Start(ctx)
}
