package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"timeshare-deals/config"
	"timeshare-deals/models"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

func newTestImporter(t *testing.T) (*Importer, *storage.SQLStore) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	policy := config.DefaultPolicy()
	policy.CatalogYear = 2026
	return NewImporter(store, policy, utils.NewDiscardLogger()), store
}

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	im, store := newTestImporter(t)

	csvData := strings.Join([]string{
		"resort_name,unit_type,season,points,annual_mf,year",
		`"Elara, a Hilton Grand Vacations Club",2BR,Platinum,"7,000","$1,820.50",2025`,
		"Ocean Tower,1BR,,4800,1450,",
		",2BR,Platinum,7000,1800,2025",
		"Parc Soleil,2BR,Gold,,,2025",
		"Grand Islander,3BR,Platinum,10000,0,2025",
	}, "\n")

	res, err := im.Import(ctx, strings.NewReader(csvData), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, models.RunStatusCompleted, res.Run.Status)

	fees, err := store.ReferenceFees(ctx)
	require.NoError(t, err)
	require.Len(t, fees, 2)

	elara := fees[0]
	assert.Equal(t, "elara", elara.ResortNameNormalized)
	assert.Equal(t, 7000, *elara.Points)
	assert.Equal(t, 1820.50, elara.AnnualMF)
	assert.Equal(t, 0.2601, *elara.MFPerPoint)
	assert.Equal(t, 2025, elara.Year)
	assert.Equal(t, "manual", elara.Source)

	tower := fees[1]
	assert.Equal(t, "Platinum", tower.Season, "season defaults to Platinum")
	assert.Equal(t, 2026, tower.Year, "year defaults to the catalog year")

	runs, err := store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunSourceImport, runs[0].Source)
}

func TestImportMalformedRowKeepsOldTable(t *testing.T) {
	ctx := context.Background()
	im, store := newTestImporter(t)

	_, err := im.Import(ctx, strings.NewReader("resort_name,annual_mf\nElara,1800\n"), FormatCSV)
	require.NoError(t, err)

	bad := "resort_name,points,annual_mf\nOcean Tower,4800,1450\nKings Land,lots,2500\n"
	res, err := im.Import(ctx, strings.NewReader(bad), FormatCSV)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedRow), "got %v", err)
	assert.Contains(t, err.Error(), "line 3")

	assert.Equal(t, models.RunStatusFailed, res.Run.Status)
	assert.NotEmpty(t, res.Run.ErrorMessage)

	fees, err := store.ReferenceFees(ctx)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, "Elara", fees[0].ResortName)

	runs, err := store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].ErrorMessage)
}

func TestImportRejectsBadValues(t *testing.T) {
	im, _ := newTestImporter(t)

	tests := []struct {
		name string
		data string
	}{
		{"non numeric fee", "resort_name,annual_mf\nElara,about 1800\n"},
		{"negative fee", "resort_name,annual_mf\nElara,-10\n"},
		{"fractional points", "resort_name,points,annual_mf\nElara,7000.5,1800\n"},
		{"bad year", "resort_name,annual_mf,year\nElara,1800,next\n"},
		{"year out of range", "resort_name,annual_mf,year\nElara,1800,1850\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Import(context.Background(), strings.NewReader(tt.data), FormatCSV)
			assert.ErrorIs(t, err, ErrMalformedRow)
		})
	}
}

func TestImportMissingColumn(t *testing.T) {
	im, _ := newTestImporter(t)

	_, err := im.Import(context.Background(), strings.NewReader("resort_name,points\nElara,7000\n"), FormatCSV)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = im.Import(context.Background(), strings.NewReader(""), FormatCSV)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestImportXLSX(t *testing.T) {
	ctx := context.Background()
	im, store := newTestImporter(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Resort_Name", "Unit_Type", "Points", "Annual_MF"},
		{"Ocean Tower", "2BR", "9600", "2100"},
		{"Kings' Land", "", "", "2400.25"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := im.Import(ctx, buf, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	fees, err := store.ReferenceFees(ctx)
	require.NoError(t, err)
	require.Len(t, fees, 2)
	assert.Equal(t, 9600, *fees[0].Points)
	assert.Nil(t, fees[1].Points)
	assert.Nil(t, fees[1].MFPerPoint)
	assert.Equal(t, 2400.25, fees[1].AnnualMF)
}

func TestFormatFromFilename(t *testing.T) {
	f, err := FormatFromFilename("fees.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = FormatFromFilename("fees.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = FormatFromFilename("fees.json")
	assert.Error(t, err)
}
