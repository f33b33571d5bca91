package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arcadelink/relay/internal/api"
	apimiddleware "github.com/arcadelink/relay/internal/api/middleware"
	"github.com/arcadelink/relay/internal/config"
	"github.com/arcadelink/relay/internal/factory"
	"github.com/arcadelink/relay/internal/middleware"
	"github.com/arcadelink/relay/internal/relay"
	redisstorage "github.com/arcadelink/relay/internal/storage/redis"
)

func main() {
	// Local development keeps settings in .env; absence is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	factoryCfg := factory.Config{
		Logger:      logger,
		StorageType: cfg.StorageType,
		RelayConfig: relay.Config{
			InstanceID: cfg.InstanceID,
			ChatLimit:  cfg.ChatLimit,
			ChatWindow: cfg.ChatWindow,
		},
	}

	if cfg.StorageType == factory.StorageTypeRedis {
		if cfg.RedisURL == "" {
			logger.Error("REDIS_URL required when STORAGE_TYPE=redis")
			os.Exit(1)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		factoryCfg.RedisConfig = &redisCfg
	}

	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Initialize(ctx, logger); err != nil {
		logger.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:            logger,
		Manager:           app.Manager,
		Signer:            app.Signer,
		Verifier:          apimiddleware.HeaderVerifier{},
		AllowedOrigins:    cfg.AllowedOrigins,
		UpgradeLimiter:    middleware.NewIPRateLimiter(cfg.UpgradeRate, cfg.UpgradeBurst),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	server := api.NewServer(router, serverConfig, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("relay started",
		slog.String("addr", server.Addr()),
		slog.String("instance_id", cfg.InstanceID))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if err := app.Bus.Close(); err != nil {
		logger.Warn("bus close", slog.String("error", err.Error()))
	}

	logger.Info("relay stopped")
}
