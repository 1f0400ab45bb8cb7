package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"timeshare-deals/models"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name   string
	schema []string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

// SQLStore implements Store on database/sql. Queries are written with ?
// placeholders and rebound for the active dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ── listings ────────────────────────────────────────────────────────────────

const listingColumns = `id, source, source_id, resort_name, resort_name_normalized, unit_type,
	season, location, points, usage_cycle, asking_price, annual_mf, bedrooms, bathrooms,
	listing_url, scraped_at, updated_at, is_active`

func (s *SQLStore) UpsertListing(ctx context.Context, l *models.Listing) (bool, error) {
	if l.SourceID == "" {
		return false, fmt.Errorf("%s: upsert listing: empty source id", s.dialect.name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: begin upsert: %w", s.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	scraped := l.ScrapedAt
	if scraped.IsZero() {
		scraped = now
	}

	var id int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM listings WHERE source_id = ?`), l.SourceID).Scan(&id)
	created := false

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO listings (source, source_id, resort_name, resort_name_normalized, unit_type,
				season, location, points, usage_cycle, asking_price, annual_mf, bedrooms, bathrooms,
				listing_url, scraped_at, updated_at, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			string(l.Source), l.SourceID, l.ResortName, l.ResortNameNormalized, l.UnitType,
			l.Season, l.Location, nullInt(l.Points), string(l.Usage), nullFloat(l.AskingPrice),
			nullFloat(l.AnnualMF), nullInt(l.Bedrooms), nullFloat(l.Bathrooms),
			l.ListingURL, scraped, now, true,
		).Scan(&id)
		if err != nil {
			return false, fmt.Errorf("%s: insert listing %s: %w", s.dialect.name, l.SourceID, err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("%s: lookup listing %s: %w", s.dialect.name, l.SourceID, err)
	default:
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE listings SET resort_name = ?, resort_name_normalized = ?, unit_type = ?,
				season = ?, location = ?, points = ?, usage_cycle = ?, asking_price = ?,
				annual_mf = ?, bedrooms = ?, bathrooms = ?, listing_url = ?, scraped_at = ?,
				updated_at = ?, is_active = ?
			WHERE id = ?`),
			l.ResortName, l.ResortNameNormalized, l.UnitType,
			l.Season, l.Location, nullInt(l.Points), string(l.Usage), nullFloat(l.AskingPrice),
			nullFloat(l.AnnualMF), nullInt(l.Bedrooms), nullFloat(l.Bathrooms), l.ListingURL, scraped,
			now, true, id,
		)
		if err != nil {
			return false, fmt.Errorf("%s: update listing %s: %w", s.dialect.name, l.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: commit upsert: %w", s.dialect.name, err)
	}
	l.ID = id
	l.UpdatedAt = now
	l.IsActive = true
	return created, nil
}

func (s *SQLStore) Listings(ctx context.Context, activeOnly bool) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	var args []interface{}
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch listings: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan listing: %w", s.dialect.name, err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(rows *sql.Rows) (*models.Listing, error) {
	var (
		l                    models.Listing
		source, usage        string
		points, bedrooms     sql.NullInt64
		price, fee, bathroom sql.NullFloat64
	)
	if err := rows.Scan(
		&l.ID, &source, &l.SourceID, &l.ResortName, &l.ResortNameNormalized, &l.UnitType,
		&l.Season, &l.Location, &points, &usage, &price, &fee, &bedrooms, &bathroom,
		&l.ListingURL, &l.ScrapedAt, &l.UpdatedAt, &l.IsActive,
	); err != nil {
		return nil, err
	}
	l.Source = models.Source(source)
	l.Usage = models.Usage(usage)
	l.Points = intFromNull(points)
	l.Bedrooms = intFromNull(bedrooms)
	l.AskingPrice = floatFromNull(price)
	l.AnnualMF = floatFromNull(fee)
	l.Bathrooms = floatFromNull(bathroom)
	return &l, nil
}

func (s *SQLStore) DeactivateMissing(ctx context.Context, source models.Source, seen []string) (int, error) {
	keep := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		keep[id] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin deactivate: %w", s.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		s.rebind(`SELECT id, source_id FROM listings WHERE source = ? AND is_active = ?`),
		string(source), true)
	if err != nil {
		return 0, fmt.Errorf("%s: select active %s: %w", s.dialect.name, source, err)
	}
	var stale []int64
	for rows.Next() {
		var (
			id       int64
			sourceID string
		)
		if err := rows.Scan(&id, &sourceID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%s: scan active: %w", s.dialect.name, err)
		}
		if _, ok := keep[sourceID]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := s.now()
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx,
			s.rebind(`UPDATE listings SET is_active = ?, updated_at = ? WHERE id = ?`),
			false, now, id); err != nil {
			return 0, fmt.Errorf("%s: deactivate listing %d: %w", s.dialect.name, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit deactivate: %w", s.dialect.name, err)
	}
	return len(stale), nil
}

// ── reference fees ──────────────────────────────────────────────────────────

func (s *SQLStore) ReplaceReferenceFees(ctx context.Context, fees []*models.ReferenceFee) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin replace fees: %w", s.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_fees`); err != nil {
		return fmt.Errorf("%s: clear fees: %w", s.dialect.name, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO reference_fees (resort_name, resort_name_normalized, unit_type, season,
			points, annual_mf, mf_per_point, year, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("%s: prepare fee insert: %w", s.dialect.name, err)
	}
	defer stmt.Close()

	for i, f := range fees {
		if _, err := stmt.ExecContext(ctx,
			f.ResortName, f.ResortNameNormalized, f.UnitType, f.Season,
			nullInt(f.Points), f.AnnualMF, nullFloat(f.MFPerPoint), f.Year, f.Source,
		); err != nil {
			return fmt.Errorf("%s: insert fee row %d: %w", s.dialect.name, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit replace fees: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) ReferenceFees(ctx context.Context) ([]*models.ReferenceFee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resort_name, resort_name_normalized, unit_type, season, points,
			annual_mf, mf_per_point, year, source
		FROM reference_fees
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch fees: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var fees []*models.ReferenceFee
	for rows.Next() {
		var (
			f      models.ReferenceFee
			points sql.NullInt64
			perPt  sql.NullFloat64
		)
		if err := rows.Scan(&f.ID, &f.ResortName, &f.ResortNameNormalized, &f.UnitType, &f.Season,
			&points, &f.AnnualMF, &perPt, &f.Year, &f.Source); err != nil {
			return nil, fmt.Errorf("%s: scan fee: %w", s.dialect.name, err)
		}
		f.Points = intFromNull(points)
		f.MFPerPoint = floatFromNull(perPt)
		fees = append(fees, &f)
	}
	return fees, rows.Err()
}

// ── run log ─────────────────────────────────────────────────────────────────

func (s *SQLStore) CreateRun(ctx context.Context, source string) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{
		Source:    source,
		StartedAt: s.now(),
		Status:    models.RunStatusRunning,
	}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO scrape_runs (source, started_at, found, new_count, updated_count, status, error_message)
		VALUES (?, ?, 0, 0, 0, ?, '')
		RETURNING id`),
		run.Source, run.StartedAt, string(run.Status),
	).Scan(&run.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: create run: %w", s.dialect.name, err)
	}
	return run, nil
}

// FinishRun finalizes a running entry. A second call for the same run fails
// with ErrRunFinalized and leaves the stored row untouched.
func (s *SQLStore) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	if run.Status == models.RunStatusRunning || run.Status == "" {
		return fmt.Errorf("%s: finish run %d: status must be final, got %q", s.dialect.name, run.ID, run.Status)
	}
	completed := s.now()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE scrape_runs
		SET completed_at = ?, found = ?, new_count = ?, updated_count = ?, status = ?, error_message = ?
		WHERE id = ? AND status = ?`),
		completed, run.Found, run.New, run.Updated, string(run.Status), run.ErrorMessage,
		run.ID, string(models.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("%s: finish run %d: %w", s.dialect.name, run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: finish run %d: %w", s.dialect.name, run.ID, err)
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT status FROM scrape_runs WHERE id = ?`), run.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %d: %w", run.ID, ErrNotFound)
		}
		return fmt.Errorf("run %d: %w", run.ID, ErrRunFinalized)
	}
	run.CompletedAt = &completed
	return nil
}

func (s *SQLStore) RecentRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, source, started_at, completed_at, found, new_count, updated_count, status, error_message
		FROM scrape_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch runs: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var runs []*models.ScrapeRun
	for rows.Next() {
		var (
			r         models.ScrapeRun
			status    string
			completed sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.StartedAt, &completed, &r.Found, &r.New,
			&r.Updated, &status, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("%s: scan run: %w", s.dialect.name, err)
		}
		r.Status = models.RunStatus(status)
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// ── stats ───────────────────────────────────────────────────────────────────

func (s *SQLStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	st := &models.StoreStats{BySource: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&st.ListingCount); err != nil {
		return nil, fmt.Errorf("%s: count listings: %w", s.dialect.name, err)
	}
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM listings WHERE is_active = ?`), true).
		Scan(&st.ActiveCount); err != nil {
		return nil, fmt.Errorf("%s: count active: %w", s.dialect.name, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_fees`).Scan(&st.ReferenceCount); err != nil {
		return nil, fmt.Errorf("%s: count fees: %w", s.dialect.name, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM listings GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("%s: count by source: %w", s.dialect.name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("%s: scan source count: %w", s.dialect.name, err)
		}
		st.BySource[source] = n
	}
	return st, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ── null helpers ────────────────────────────────────────────────────────────

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatFromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
