package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	selectSessionSQL = `SELECT id, mode, history, last_detected_objects, updated_at FROM sessions WHERE id = $1`
	upsertSessionSQL = `INSERT INTO sessions (id, mode, history, last_detected_objects, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    mode = EXCLUDED.mode,
    history = EXCLUDED.history,
    last_detected_objects = EXCLUDED.last_detected_objects,
    updated_at = EXCLUDED.updated_at`
	deleteSessionSQL = `DELETE FROM sessions WHERE id = $1`
	pruneSessionsSQL = `DELETE FROM sessions WHERE updated_at < $1`
)

// PostgresStore keeps sessions in a single table with JSONB history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("postgres migrate up: %w", err)
	}
	return nil
}

// Get loads a session.
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var (
		sess    types.Session
		mode    string
		history []byte
		objects []byte
	)
	err := s.pool.QueryRow(ctx, selectSessionSQL, id).Scan(&sess.ID, &mode, &history, &objects, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres select session: %w", err)
	}
	sess.Mode = types.Mode(mode)
	if err := json.Unmarshal(history, &sess.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if sess.History == nil {
		sess.History = []types.Turn{}
	}
	if err := json.Unmarshal(objects, &sess.LastDetectedObjects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detected objects: %w", err)
	}
	if len(sess.LastDetectedObjects) == 0 {
		sess.LastDetectedObjects = nil
	}
	return &sess, nil
}

// Put upserts a session.
func (s *PostgresStore) Put(ctx context.Context, sess *types.Session) error {
	if err := validate(sess); err != nil {
		return err
	}
	history, err := json.Marshal(types.CloneTurns(sess.History))
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	objects := sess.LastDetectedObjects
	if objects == nil {
		objects = []string{}
	}
	objectsJSON, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("failed to marshal detected objects: %w", err)
	}
	updatedAt := sess.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, upsertSessionSQL, sess.ID, string(sess.Mode), history, objectsJSON, updatedAt); err != nil {
		return fmt.Errorf("postgres upsert session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if _, err := s.pool.Exec(ctx, deleteSessionSQL, id); err != nil {
		return fmt.Errorf("postgres delete session: %w", err)
	}
	return nil
}

// Prune deletes sessions not updated since olderThan.
func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, pruneSessionsSQL, olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
