// Package database provides SQLite storage for the ingestion engine.
package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection. It is opened once per process; the
// underlying pool serializes writes.
type DB struct {
	conn *sql.DB
}

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL for concurrent readers, foreign keys for cascade deletes.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migration is one schema step. Versions are applied in order, each exactly
// once, recorded in schema_migrations.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL DEFAULT 1,
		folder_id INTEGER REFERENCES folders(id),
		type TEXT NOT NULL DEFAULT 'web',
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		site_url TEXT NOT NULL DEFAULT '',
		icon_url TEXT NOT NULL DEFAULT '',
		icon_path TEXT NOT NULL DEFAULT '',
		icon_type TEXT NOT NULL DEFAULT '',
		refresh_interval_minutes INTEGER NOT NULL DEFAULT 60,
		etag TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT '',
		last_fetched_at DATETIME,
		next_fetch_at DATETIME,
		error_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		last_error_at DATETIME,
		paused_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME,
		UNIQUE(user_id, url)
	);
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		guid TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		readability_content TEXT NOT NULL DEFAULT '',
		enclosure_url TEXT NOT NULL DEFAULT '',
		enclosure_type TEXT NOT NULL DEFAULT '',
		enclosure_length INTEGER NOT NULL DEFAULT 0,
		enclosure_duration INTEGER NOT NULL DEFAULT 0,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		thumbnail_path TEXT NOT NULL DEFAULT '',
		is_bookmarked INTEGER NOT NULL DEFAULT 0,
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		UNIQUE(feed_id, guid)
	);`},
	{2, `
	CREATE TABLE IF NOT EXISTS read_state (
		user_id INTEGER NOT NULL,
		article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at DATETIME,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, article_id)
	);
	CREATE TABLE IF NOT EXISTS retention_settings (
		user_id INTEGER PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		max_age_days INTEGER NOT NULL DEFAULT 90,
		max_per_feed INTEGER NOT NULL DEFAULT 500,
		keep_bookmarked INTEGER NOT NULL DEFAULT 1,
		keep_unread INTEGER NOT NULL DEFAULT 1
	);`},
	{3, `
	CREATE INDEX IF NOT EXISTS idx_feeds_next_fetch ON feeds(next_fetch_at);
	CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id);
	CREATE INDEX IF NOT EXISTS idx_articles_fetched_at ON articles(fetched_at DESC);
	CREATE INDEX IF NOT EXISTS idx_read_state_updated ON read_state(updated_at);`},
}

func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	);`); err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}
	for _, m := range migrations {
		var n int
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			// Another process may have applied this version between the
			// check and the exec; "already exists" is not a failure.
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.version, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// timePtr converts a scanned NullTime back to an optional time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
