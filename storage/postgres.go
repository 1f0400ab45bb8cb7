package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"timeshare-deals/utils"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                     BIGSERIAL PRIMARY KEY,
		source                 VARCHAR(32)      NOT NULL,
		source_id              TEXT             UNIQUE NOT NULL,
		resort_name            TEXT             NOT NULL,
		resort_name_normalized TEXT             NOT NULL DEFAULT '',
		unit_type              TEXT             NOT NULL DEFAULT '',
		season                 TEXT             NOT NULL DEFAULT '',
		location               TEXT             NOT NULL DEFAULT '',
		points                 INTEGER,
		usage_cycle            VARCHAR(16)      NOT NULL DEFAULT 'Annual',
		asking_price           DOUBLE PRECISION,
		annual_mf              DOUBLE PRECISION,
		bedrooms               INTEGER,
		bathrooms              DOUBLE PRECISION,
		listing_url            TEXT             NOT NULL DEFAULT '',
		scraped_at             TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		is_active              BOOLEAN          NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_resort ON listings(resort_name_normalized)`,
	`CREATE TABLE IF NOT EXISTS reference_fees (
		id                     BIGSERIAL PRIMARY KEY,
		resort_name            TEXT             NOT NULL,
		resort_name_normalized TEXT             NOT NULL,
		unit_type              TEXT             NOT NULL DEFAULT '',
		season                 TEXT             NOT NULL DEFAULT '',
		points                 INTEGER,
		annual_mf              DOUBLE PRECISION NOT NULL CHECK (annual_mf > 0),
		mf_per_point           DOUBLE PRECISION,
		year                   INTEGER          NOT NULL,
		source                 TEXT             NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reference_resort ON reference_fees(resort_name_normalized)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id            BIGSERIAL PRIMARY KEY,
		source        VARCHAR(32) NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		found         INTEGER     NOT NULL DEFAULT 0,
		new_count     INTEGER     NOT NULL DEFAULT 0,
		updated_count INTEGER     NOT NULL DEFAULT 0,
		status        VARCHAR(16) NOT NULL,
		error_message TEXT        NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs(started_at DESC)`,
}

// OpenPostgres connects to PostgreSQL, waiting for the server to accept
// connections, and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *utils.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := utils.RetryConfig{MaxAttempts: 6, BaseDelay: 2 * time.Second, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	s := newSQLStore(db, dialect{name: "postgres", schema: postgresSchema, numbered: true})
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}
