package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/situation-engine/pkg/state"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStorage implements storage.Storage on a single SQLite file, for
// deployments without Redis. It has no pub/sub, so session events are off.
type SQLiteStorage struct {
	ruleSetDir
	db         *sql.DB
	logger     *slog.Logger
	sessionTTL time.Duration
	lockTTL    time.Duration
	now        func() time.Time
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at opts.SQLitePath and
// brings its schema up to date.
func NewSQLiteStorage(ctx context.Context, opts Options, logger *slog.Logger) (*SQLiteStorage, error) {
	if opts.SQLitePath == "" {
		return nil, fmt.Errorf("missing sqlite path")
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
	if dir := filepath.Dir(opts.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := "file:" + opts.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("SQLite storage ready", "path", opts.SQLitePath)
	return &SQLiteStorage{
		ruleSetDir: ruleSetDir{dataDir: opts.DataDir, logger: logger},
		db:         db,
		logger:     logger,
		sessionTTL: opts.SessionTTL,
		lockTTL:    opts.LockTTL,
		now:        time.Now,
	}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	// m.Close would close db, which the storage keeps using.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", "error", err)
		return err
	}
	s.logger.Info("SQLite database closed")
	return nil
}

// GameState operations

func (s *SQLiteStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	now := s.now()
	gs.UpdatedAt = now

	data, err := gs.Marshal()
	if err != nil {
		s.logger.Error("Failed to marshal gamestate", "session_id", id, "error", err)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		id.String(), data, now.Add(s.sessionTTL).UnixMilli())
	if err != nil {
		s.logger.Error("Failed to save gamestate", "session_id", id, "error", err)
		return fmt.Errorf("failed to save gamestate: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = ? AND expires_at > ?`,
		id.String(), s.now().UnixMilli()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("Gamestate not found", "session_id", id)
			return nil, nil
		}
		s.logger.Error("Failed to load gamestate", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load gamestate: %w", err)
	}

	gs, err := state.Load(data)
	if err != nil {
		s.logger.Error("Failed to unmarshal gamestate", "session_id", id, "error", err)
		return nil, err
	}
	return gs, nil
}

func (s *SQLiteStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String()); err != nil {
		s.logger.Error("Failed to delete gamestate", "session_id", id, "error", err)
		return fmt.Errorf("failed to delete gamestate: %w", err)
	}
	return nil
}

// PurgeExpired removes sessions and locks whose TTL has passed.
func (s *SQLiteStorage) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_locks WHERE expires_at <= ?`, now); err != nil {
		return 0, fmt.Errorf("failed to purge locks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Lock operations

// AcquireLock takes the lock if it is free or its holder's TTL has passed.
func (s *SQLiteStorage) AcquireLock(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO session_locks (id, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE session_locks.expires_at <= ?`,
		id.String(), owner, now.Add(s.lockTTL).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStorage) ReleaseLock(ctx context.Context, id uuid.UUID, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_locks WHERE id = ? AND owner = ?`, id.String(), owner); err != nil {
		s.logger.Error("Failed to release session lock", "session_id", id, "error", err)
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
