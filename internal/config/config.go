// Package config loads process configuration from the environment.
// cmd/server loads a .env file first (godotenv), so local development
// can keep settings in a file while deployments use real env vars.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Config holds all server configuration
type Config struct {
	// Server
	Host string
	Port int

	// InstanceID distinguishes this process on the bus. Defaults to a
	// random ID per start.
	InstanceID string

	// Storage selects the backend: "memory" or "redis".
	StorageType string
	RedisURL    string

	// Security
	AllowedOrigins []string

	// Rate limiting on the upgrade route. TrustProxyHeaders makes the
	// limiter read X-Forwarded-For / X-Real-IP, which is only safe
	// behind a reverse proxy that strips client-supplied values.
	UpgradeRate       rate.Limit
	UpgradeBurst      int
	TrustProxyHeaders bool

	// Chat throttle
	ChatLimit  int
	ChatWindow time.Duration

	// Logging
	LogLevel string
}

// Default returns configuration with default values
func Default() *Config {
	return &Config{
		Host:           "",
		Port:           8080,
		InstanceID:     "relay-" + uuid.NewString(),
		StorageType:    "memory",
		AllowedOrigins: []string{"http://localhost:8080"},
		UpgradeRate:    5,
		UpgradeBurst:   10,
		ChatLimit:      5,
		ChatWindow:     10 * time.Second,
		LogLevel:       "info",
	}
}

// Load builds a Config from environment variables over defaults.
func Load() *Config {
	cfg := Default()

	if host := os.Getenv("RELAY_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("RELAY_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil && val > 0 {
			cfg.Port = val
		}
	}
	if id := os.Getenv("RELAY_INSTANCE_ID"); id != "" {
		cfg.InstanceID = id
	}
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.StorageType = storageType
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if r := os.Getenv("UPGRADE_RATE"); r != "" {
		if val, err := strconv.Atoi(r); err == nil && val > 0 {
			cfg.UpgradeRate = rate.Limit(val)
		}
	}
	if b := os.Getenv("UPGRADE_BURST"); b != "" {
		if val, err := strconv.Atoi(b); err == nil && val > 0 {
			cfg.UpgradeBurst = val
		}
	}
	if trust := os.Getenv("TRUST_PROXY_HEADERS"); trust != "" {
		if val, err := strconv.ParseBool(trust); err == nil {
			cfg.TrustProxyHeaders = val
		}
	}
	if limit := os.Getenv("CHAT_LIMIT"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil && val > 0 {
			cfg.ChatLimit = val
		}
	}
	if window := os.Getenv("CHAT_WINDOW_SECONDS"); window != "" {
		if val, err := strconv.Atoi(window); err == nil && val > 0 {
			cfg.ChatWindow = time.Duration(val) * time.Second
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
