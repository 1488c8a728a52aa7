package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jwebster45206/situation-engine/internal/config"
	"github.com/jwebster45206/situation-engine/internal/handlers"
	"github.com/jwebster45206/situation-engine/internal/logger"
	"github.com/jwebster45206/situation-engine/internal/middleware"
	"github.com/jwebster45206/situation-engine/internal/services"
	"github.com/jwebster45206/situation-engine/internal/services/events"
	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/internal/storage"
	pkgstorage "github.com/jwebster45206/situation-engine/pkg/storage"
)

func main() {
	// A .env file is optional; the real environment always wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Situation Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"narrator", cfg.NarratorProvider,
		"storage", cfg.StorageBackend,
		"data_dir", cfg.DataDir)

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	var narrator services.Narrator
	switch cfg.NarratorProvider {
	case "anthropic":
		narrator = services.NewAnthropicNarrator(cfg.AnthropicAPIKey, cfg.ModelName, log)
		log.Info("Using Anthropic narrator", "model_name", cfg.ModelName)
	case "venice":
		narrator = services.NewVeniceNarrator(cfg.VeniceAPIKey, cfg.ModelName, log)
		log.Info("Using Venice narrator", "model_name", cfg.ModelName)
	case "gemini":
		gemini, err := services.NewGeminiNarrator(startCtx, cfg.GeminiAPIKey, cfg.ModelName, log)
		if err != nil {
			log.Error("Failed to create Gemini narrator", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		narrator = gemini
		log.Info("Using Gemini narrator", "model_name", cfg.ModelName)
	default:
		log.Info("Narration disabled")
	}

	opts := storage.Options{
		RedisURL:   cfg.RedisURL,
		SQLitePath: cfg.SQLitePath,
		DataDir:    cfg.DataDir,
		SessionTTL: cfg.SessionTTL,
		LockTTL:    cfg.LockTTL,
	}

	var (
		store     pkgstorage.Storage
		publisher events.Publisher
		eventsAPI http.Handler
	)
	switch cfg.StorageBackend {
	case "sqlite":
		sqlite, err := storage.NewSQLiteStorage(startCtx, opts, log)
		if err != nil {
			log.Error("Failed to open storage", "error", err)
			os.Exit(1)
		}
		go purgeExpired(sqlite, cfg.SessionTTL, log)
		store = sqlite
		log.Info("Session events disabled: sqlite has no pub/sub")
	default:
		redisStore, err := storage.NewRedisStorage(opts, log)
		if err != nil {
			log.Error("Failed to configure storage", "error", err)
			os.Exit(1)
		}
		if err := redisStore.WaitForConnection(startCtx, 30, 2*time.Second); err != nil {
			log.Error("Failed to connect to storage", "error", err)
			os.Exit(1)
		}
		store = redisStore
		publisher = events.NewBroadcaster(redisStore.Client(), log)
		eventsAPI = handlers.NewEventsHandler(redisStore.Client(), log)
	}
	log.Info("Storage connection established successfully")

	sessions := session.NewService(store, narrator, publisher, log)

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, cfg.NarratorProvider, log))

	ruleSetHandler := handlers.NewRuleSetHandler(store, log)
	mux.Handle("/v1/rulesets", ruleSetHandler)
	mux.Handle("/v1/rulesets/", ruleSetHandler)

	sessionHandler := handlers.NewSessionHandler(sessions, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	if eventsAPI != nil {
		mux.Handle("/v1/events/sessions/", eventsAPI)
	}

	handler := middleware.LoggerWith(log, mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events endpoint streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

// purgeExpired sweeps expired sqlite rows; Redis expires keys on its own.
func purgeExpired(s *storage.SQLiteStorage, ttl time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(min(ttl, time.Hour))
	defer ticker.Stop()
	for range ticker.C {
		n, err := s.PurgeExpired(context.Background())
		if err != nil {
			log.Warn("Failed to purge expired sessions", "error", err)
			continue
		}
		if n > 0 {
			log.Info("Purged expired sessions", "count", n)
		}
	}
}
