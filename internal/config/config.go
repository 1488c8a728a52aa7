package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Default model per narrator provider, used when MODEL_NAME is unset.
var defaultModels = map[string]string{
	"anthropic": "claude-3-5-haiku-latest",
	"venice":    "venice-uncensored",
	"gemini":    "gemini-2.5-flash",
}

type Config struct {
	Port             string
	Environment      string
	LogLevel         slog.Level
	StorageBackend   string // "redis" or "sqlite"
	RedisURL         string
	SQLitePath       string
	DataDir          string
	SessionTTL       time.Duration
	LockTTL          time.Duration
	NarratorProvider string // "none", "anthropic", "venice" or "gemini"
	AnthropicAPIKey  string
	VeniceAPIKey     string
	GeminiAPIKey     string
	ModelName        string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		LogLevel:         parseLogLevel(getEnv("LOG_LEVEL", "info")),
		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", "redis")),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/sessions.db"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		NarratorProvider: strings.ToLower(getEnv("NARRATOR_PROVIDER", "none")),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		VeniceAPIKey:     os.Getenv("VENICE_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
	}

	var err error
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDuration("LOCK_TTL", "30s"); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case "redis", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %s", cfg.StorageBackend)
	}

	switch cfg.NarratorProvider {
	case "none":
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when NARRATOR_PROVIDER=anthropic")
		}
	case "venice":
		if cfg.VeniceAPIKey == "" {
			return nil, fmt.Errorf("VENICE_API_KEY is required when NARRATOR_PROVIDER=venice")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when NARRATOR_PROVIDER=gemini")
		}
	default:
		return nil, fmt.Errorf("unsupported NARRATOR_PROVIDER: %s", cfg.NarratorProvider)
	}
	cfg.ModelName = getEnv("MODEL_NAME", defaultModels[cfg.NarratorProvider])

	return cfg, nil
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
