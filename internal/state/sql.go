package state

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/OuterWinnie/Goodreads-Bot/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS user_state (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	seq INT NOT NULL,
	last_review_ts VARCHAR(19) NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const mysqlUpsert = `
INSERT INTO user_state (id, seq, last_review_ts)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
	seq=VALUES(seq),
	last_review_ts=VALUES(last_review_ts)
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_state (
	id TEXT NOT NULL PRIMARY KEY,
	seq INTEGER NOT NULL,
	last_review_ts TEXT NOT NULL
);
`

const sqliteUpsert = `
INSERT INTO user_state (id, seq, last_review_ts)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	seq=excluded.seq,
	last_review_ts=excluded.last_review_ts
`

// SQLStore keeps the table in a user_state relation.
type SQLStore struct {
	db     *sql.DB
	upsert string
	logger *log.Logger
}

// NewMySQLStore creates the database (if needed), ensures schema, and returns a ready store.
func NewMySQLStore(ctx context.Context, cfg config.Config, logger *log.Logger) (*SQLStore, error) {
	rootDSN := fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=true&loc=Local", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort)
	rootDB, err := sql.Open("mysql", rootDSN)
	if err != nil {
		return nil, fmt.Errorf("open root mysql connection: %w", err)
	}
	if err := rootDB.PingContext(ctx); err != nil {
		_ = rootDB.Close()
		return nil, fmt.Errorf("ping root mysql: %w", err)
	}
	createDB := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", cfg.DBName)
	if _, err := rootDB.ExecContext(ctx, createDB); err != nil {
		_ = rootDB.Close()
		return nil, fmt.Errorf("create database: %w", err)
	}
	_ = rootDB.Close()

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql with db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql with db: %w", err)
	}
	return newSQLStore(ctx, db, mysqlSchema, mysqlUpsert, logger)
}

// NewSQLiteStore opens (or creates) a sqlite database at path.
func NewSQLiteStore(ctx context.Context, path string, logger *log.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, sqliteSchema, sqliteUpsert, logger)
}

func newSQLStore(ctx context.Context, db *sql.DB, schema, upsert string, logger *log.Logger) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLStore{db: db, upsert: upsert, logger: logger}, nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Load returns all entries in their saved order.
func (s *SQLStore) Load(ctx context.Context) (Table, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, last_review_ts FROM user_state ORDER BY seq, id")
	if err != nil {
		return Table{}, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	var t Table
	for rows.Next() {
		var e Entry
		var id string
		if err := rows.Scan(&id, &e.LastReviewTS); err != nil {
			return Table{}, fmt.Errorf("scan state row: %w", err)
		}
		e.ID = UserID(id)
		t.Users = append(t.Users, e)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate state rows: %w", err)
	}
	return t, nil
}

// Save upserts every entry of t in one transaction.
func (s *SQLStore) Save(ctx context.Context, t Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save state: %w", err)
	}
	for i, e := range t.Users {
		if _, err := tx.ExecContext(ctx, s.upsert, string(e.ID), i, e.LastReviewTS); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save state for %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}
