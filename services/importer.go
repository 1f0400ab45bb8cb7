package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"timeshare-deals/config"
	"timeshare-deals/metrics"
	"timeshare-deals/models"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

var (
	// ErrMalformedRow aborts an import; the previous reference table stays.
	ErrMalformedRow = errors.New("malformed row")
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = errors.New("missing required column")
)

// ImportFormat is the tabular encoding of a reference fee file.
type ImportFormat string

const (
	FormatCSV  ImportFormat = "csv"
	FormatXLSX ImportFormat = "xlsx"
)

// FormatFromFilename picks the format from a file extension.
func FormatFromFilename(name string) (ImportFormat, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", "":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported reference file %q (want .csv or .xlsx)", name)
	}
}

const (
	defaultReferenceSeason = "Platinum"
	referenceSource        = "manual"
)

var requiredColumns = []string{"resort_name", "annual_mf"}

// ImportResult summarizes a finished import.
type ImportResult struct {
	Run      *models.ScrapeRun
	Imported int
	Skipped  int
}

// feeRow is one parsed data row before it becomes a ReferenceFee.
type feeRow struct {
	ResortName string  `validate:"required"`
	AnnualMF   float64 `validate:"gt=0"`
	Points     *int    `validate:"omitempty,gte=0"`
	Year       int     `validate:"gte=1970,lte=2100"`
}

// Importer bulk-replaces the reference fee table from CSV or XLSX files.
type Importer struct {
	store    storage.Store
	policy   *config.Policy
	validate *validator.Validate
	logger   *utils.Logger
}

func NewImporter(store storage.Store, policy *config.Policy, logger *utils.Logger) *Importer {
	return &Importer{store: store, policy: policy, validate: validator.New(), logger: logger}
}

// Import reads the whole file, then swaps the reference table in one
// transaction. Rows without resort_name or annual_mf are skipped; any other
// bad value aborts the import and leaves the existing table untouched.
// Every import is recorded in the run log.
func (im *Importer) Import(ctx context.Context, r io.Reader, format ImportFormat) (*ImportResult, error) {
	run, err := im.store.CreateRun(ctx, models.RunSourceImport)
	if err != nil {
		return nil, fmt.Errorf("import: create run: %w", err)
	}
	result := &ImportResult{Run: run}

	importErr := im.load(ctx, r, format, result)

	if importErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = shortError(importErr)
		im.logger.Error("[import] Reference import failed: %v", importErr)
	} else {
		run.Status = models.RunStatusCompleted
		im.logger.Info("[import] Imported %d reference fee rows (%d skipped)", result.Imported, result.Skipped)
	}

	if err := im.store.FinishRun(context.WithoutCancel(ctx), run); err != nil && importErr == nil {
		importErr = fmt.Errorf("import: finish run: %w", err)
	}
	metrics.RecordRun(models.RunSourceImport, string(run.Status))
	return result, importErr
}

func (im *Importer) load(ctx context.Context, r io.Reader, format ImportFormat, result *ImportResult) error {
	records, err := readRecords(r, format)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("import: %w: empty file, header row required", ErrMissingColumn)
	}

	cols := headerIndex(records[0])
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return fmt.Errorf("import: %w: %s", ErrMissingColumn, c)
		}
	}

	fees := make([]*models.ReferenceFee, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}

		if cell("resort_name") == "" || cell("annual_mf") == "" {
			result.Skipped++
			continue
		}

		row, err := im.parseRow(cell)
		if err != nil {
			return fmt.Errorf("import: line %d: %w", line, err)
		}
		if row.AnnualMF == 0 {
			result.Skipped++
			continue
		}
		if err := im.validate.Struct(row); err != nil {
			return fmt.Errorf("import: line %d: %w: %v", line, ErrMalformedRow, err)
		}

		season := cell("season")
		if season == "" {
			season = defaultReferenceSeason
		}
		fee := &models.ReferenceFee{
			ResortName:           row.ResortName,
			ResortNameNormalized: NormalizeName(row.ResortName),
			UnitType:             cell("unit_type"),
			Season:               season,
			Points:               row.Points,
			AnnualMF:             row.AnnualMF,
			Year:                 row.Year,
			Source:               referenceSource,
		}
		if row.Points != nil && *row.Points > 0 {
			v := roundTo(row.AnnualMF/float64(*row.Points), 4)
			fee.MFPerPoint = &v
		}
		fees = append(fees, fee)
	}

	if err := im.store.ReplaceReferenceFees(ctx, fees); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	result.Imported = len(fees)
	return nil
}

func (im *Importer) parseRow(cell func(string) string) (*feeRow, error) {
	row := &feeRow{ResortName: cell("resort_name"), Year: im.policy.CatalogYear}

	mf, err := parseDecimal(cell("annual_mf"))
	if err != nil {
		return nil, fmt.Errorf("%w: annual_mf: %v", ErrMalformedRow, err)
	}
	row.AnnualMF = mf

	if s := cell("points"); s != "" {
		v, err := parseDecimal(s)
		if err != nil || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: points %q is not a whole number", ErrMalformedRow, s)
		}
		p := int(v)
		row.Points = &p
	}

	if s := cell("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: year %q", ErrMalformedRow, s)
		}
		row.Year = y
	}
	return row, nil
}

// parseDecimal accepts "1,234.50" and "$1234.5" but nothing else.
func parseDecimal(s string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	return strconv.ParseFloat(clean, 64)
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

func readRecords(r io.Reader, format ImportFormat) ([][]string, error) {
	switch format {
	case FormatCSV, "":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("import: read csv: %w", err)
		}
		return records, nil
	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("import: open xlsx: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("import: read sheet %q: %w", sheets[0], err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("import: unsupported format %q", format)
	}
}
