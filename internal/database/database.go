package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB provides the data access layer
type DB struct {
	conn   *sql.DB
	driver string
}

// New creates a new database connection based on config
func New(cfg *config.Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch cfg.StoreDriver {
	case "sqlite":
		// Ensure directory exists
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
		conn, err = sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		conn.SetMaxOpenConns(1) // SQLite is single-writer
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DATABASE_URL required for postgres driver")
		}
		conn, err = sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		conn.SetMaxOpenConns(10)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.StoreDriver)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn, driver: cfg.StoreDriver}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info().Str("driver", cfg.StoreDriver).Msg("database connected")
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// autoIncrement returns the correct auto-increment syntax
func (db *DB) autoIncrement() string {
	if db.driver == "postgres" {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// timestampType returns the correct timestamp type
func (db *DB) timestampType() string {
	if db.driver == "postgres" {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// now returns the correct current timestamp function
func (db *DB) now() string {
	if db.driver == "postgres" {
		return "NOW()"
	}
	return "CURRENT_TIMESTAMP"
}

func (db *DB) rebind(query string) string {
	if db.driver == "postgres" {
		return replacePlaceholders(query)
	}
	return query
}

// --- Slot Operations ---

// SlotStore exposes the slots table as a key-value store.
type SlotStore struct {
	db *DB
}

// Slots returns a store backed by the slots table. Closing it does not close
// the database.
func (db *DB) Slots() *SlotStore {
	return &SlotStore{db: db}
}

func (s *SlotStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.conn.QueryRowContext(ctx,
		s.db.rebind("SELECT slot_value FROM slots WHERE slot_key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading slot %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *SlotStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO slots (slot_key, slot_value, updated_at) VALUES (?, ?, %s)
		ON CONFLICT (slot_key) DO UPDATE SET slot_value = excluded.slot_value, updated_at = excluded.updated_at`,
		s.db.now())

	if _, err := s.db.conn.ExecContext(ctx, s.db.rebind(query), key, string(value)); err != nil {
		return fmt.Errorf("writing slot %s: %w", key, err)
	}
	return nil
}

func (s *SlotStore) Close() error { return nil }

// --- Sync History Operations ---

func (db *DB) InsertSyncStatus(ctx context.Context, s *models.SyncRecord) (int, error) {
	query := fmt.Sprintf(`INSERT INTO sync_history (sync_type, status, item_count, error_message, started_at) VALUES (?, ?, ?, ?, %s)`, db.now())
	if db.driver == "postgres" {
		query = replacePlaceholders(query)
		query += " RETURNING id"
		var id int
		err := db.conn.QueryRowContext(ctx, query, s.SyncType, s.Status, s.ItemCount, s.ErrorMessage).Scan(&id)
		return id, err
	}

	result, err := db.conn.ExecContext(ctx, query, s.SyncType, s.Status, s.ItemCount, s.ErrorMessage)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

func (db *DB) UpdateSyncStatus(ctx context.Context, id int, status string, count int, errMsg string) error {
	query := fmt.Sprintf("UPDATE sync_history SET status = ?, item_count = ?, error_message = ?, completed_at = %s WHERE id = ?", db.now())
	_, err := db.conn.ExecContext(ctx, db.rebind(query), status, count, errMsg, id)
	return err
}

func (db *DB) GetLatestSyncStatus(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, sync_type, status, item_count, error_message, started_at, completed_at
		FROM sync_history ORDER BY started_at DESC, id DESC LIMIT %d`, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []models.SyncRecord
	for rows.Next() {
		var s models.SyncRecord
		var completedAt sql.NullTime
		err := rows.Scan(&s.ID, &s.SyncType, &s.Status, &s.ItemCount, &s.ErrorMessage,
			&s.StartedAt, &completedAt)
		if err != nil {
			return nil, err
		}
		if completedAt.Valid {
			s.CompletedAt = completedAt.Time
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

// replacePlaceholders converts ? to $1, $2, etc. for PostgreSQL
func replacePlaceholders(query string) string {
	result := make([]byte, 0, len(query)+10)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, []byte(fmt.Sprintf("%d", n))...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
