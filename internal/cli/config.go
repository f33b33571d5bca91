package cli

import (
	"os"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	RedisURL  string
	Output    string
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("RELAYCTL_SERVER", "http://localhost:8080"),
		RedisURL:  os.Getenv("REDIS_URL"),
		Output:    "text",
		Verbose:   false,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
