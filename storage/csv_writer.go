package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"timeshare-deals/models"
)

// CSVWriter exports enriched deals to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// unknownCell marks a value that could not be determined, so it is never
// read back as zero.
const unknownCell = "unknown"

var dealHeader = []string{
	"source_id", "source", "resort_name", "location", "unit_type", "season", "usage",
	"points", "annual_points", "asking_price", "annual_mf", "fee_origin", "mf_per_point",
	"total_10yr", "deal_grade", "matched_reference", "listing_url", "scraped_at",
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(dealHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteDeals appends one row per deal. Unknown values are written as
// "unknown", never as zero or an empty cell.
func (c *CSVWriter) WriteDeals(deals []*models.Deal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range deals {
		row := []string{
			d.SourceID,
			string(d.Source),
			d.ResortName,
			d.Location,
			d.UnitType,
			d.Season,
			string(d.Usage),
			formatInt(d.Points),
			strconv.Itoa(d.AnnualPoints),
			formatFloat(d.AskingPrice, 2),
			formatFloat(d.EffectiveMF, 2),
			string(d.FeeOrigin),
			formatFloat(d.MFPerPoint, 4),
			formatFloat(d.TotalTenYear, 2),
			string(d.Grade),
			d.MatchedKey,
			d.ListingURL,
			d.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func formatInt(p *int) string {
	if p == nil {
		return unknownCell
	}
	return strconv.Itoa(*p)
}

func formatFloat(p *float64, places int) string {
	if p == nil {
		return unknownCell
	}
	return strconv.FormatFloat(*p, 'f', places, 64)
}
