package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		source                 TEXT     NOT NULL,
		source_id              TEXT     NOT NULL UNIQUE,
		resort_name            TEXT     NOT NULL,
		resort_name_normalized TEXT     NOT NULL DEFAULT '',
		unit_type              TEXT     NOT NULL DEFAULT '',
		season                 TEXT     NOT NULL DEFAULT '',
		location               TEXT     NOT NULL DEFAULT '',
		points                 INTEGER,
		usage_cycle            TEXT     NOT NULL DEFAULT 'Annual',
		asking_price           REAL,
		annual_mf              REAL,
		bedrooms               INTEGER,
		bathrooms              REAL,
		listing_url            TEXT     NOT NULL DEFAULT '',
		scraped_at             DATETIME NOT NULL,
		updated_at             DATETIME NOT NULL,
		is_active              BOOLEAN  NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_resort ON listings(resort_name_normalized)`,
	`CREATE TABLE IF NOT EXISTS reference_fees (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		resort_name            TEXT    NOT NULL,
		resort_name_normalized TEXT    NOT NULL,
		unit_type              TEXT    NOT NULL DEFAULT '',
		season                 TEXT    NOT NULL DEFAULT '',
		points                 INTEGER,
		annual_mf              REAL    NOT NULL CHECK (annual_mf > 0),
		mf_per_point           REAL,
		year                   INTEGER NOT NULL,
		source                 TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reference_resort ON reference_fees(resort_name_normalized)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		source        TEXT     NOT NULL,
		started_at    DATETIME NOT NULL,
		completed_at  DATETIME,
		found         INTEGER  NOT NULL DEFAULT 0,
		new_count     INTEGER  NOT NULL DEFAULT 0,
		updated_count INTEGER  NOT NULL DEFAULT 0,
		status        TEXT     NOT NULL,
		error_message TEXT     NOT NULL DEFAULT ''
	)`,
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates the schema. ":memory:" is accepted for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// one connection: a single writer, and :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	s := newSQLStore(db, dialect{name: "sqlite", schema: sqliteSchema})
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}
