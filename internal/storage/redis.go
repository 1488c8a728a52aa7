package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/situation-engine/pkg/state"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

const (
	gamestatePrefix = "gamestate:"
	lockPrefix      = "session-lock:"
)

// Only delete if we own the lock
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisStorage implements storage.Storage using Redis for game states and
// locks, and the filesystem for rule sets.
type RedisStorage struct {
	ruleSetDir
	client     *redis.Client
	logger     *slog.Logger
	sessionTTL time.Duration
	lockTTL    time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// Options configures a storage backend.
type Options struct {
	RedisURL   string // host:port or redis:// URL
	SQLitePath string
	DataDir    string
	SessionTTL time.Duration
	LockTTL    time.Duration
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(opts Options, logger *slog.Logger) (*RedisStorage, error) {
	redisOpts := &redis.Options{Addr: opts.RedisURL}
	if strings.HasPrefix(opts.RedisURL, "redis://") || strings.HasPrefix(opts.RedisURL, "rediss://") {
		parsed, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		redisOpts = parsed
	}

	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}

	return &RedisStorage{
		ruleSetDir: ruleSetDir{dataDir: opts.DataDir, logger: logger},
		client:     redis.NewClient(redisOpts),
		logger:     logger,
		sessionTTL: opts.SessionTTL,
		lockTTL:    opts.LockTTL,
	}, nil
}

// Client exposes the underlying client for pub/sub users.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// GameState operations

func (r *RedisStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	gs.UpdatedAt = time.Now()

	data, err := gs.Marshal()
	if err != nil {
		r.logger.Error("Failed to marshal gamestate", "session_id", id, "error", err)
		return err
	}

	if err := r.client.Set(ctx, gamestatePrefix+id.String(), data, r.sessionTTL).Err(); err != nil {
		r.logger.Error("Failed to save gamestate", "session_id", id, "error", err)
		return fmt.Errorf("failed to save gamestate: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	data, err := r.client.Get(ctx, gamestatePrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Gamestate not found", "session_id", id)
			return nil, nil
		}
		r.logger.Error("Failed to load gamestate", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load gamestate: %w", err)
	}

	gs, err := state.Load(data)
	if err != nil {
		r.logger.Error("Failed to unmarshal gamestate", "session_id", id, "error", err)
		return nil, err
	}
	return gs, nil
}

func (r *RedisStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, gamestatePrefix+id.String()).Err(); err != nil {
		r.logger.Error("Failed to delete gamestate", "session_id", id, "error", err)
		return fmt.Errorf("failed to delete gamestate: %w", err)
	}
	return nil
}

// Lock operations

func (r *RedisStorage) AcquireLock(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockPrefix+id.String(), owner, r.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return ok, nil
}

func (r *RedisStorage) ReleaseLock(ctx context.Context, id uuid.UUID, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{lockPrefix + id.String()}, owner).Err(); err != nil {
		r.logger.Error("Failed to release session lock", "session_id", id, "error", err)
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
