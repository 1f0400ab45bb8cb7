package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeshare-deals/config"
	"timeshare-deals/models"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

type recordingWriter struct {
	deals []*models.Deal
}

func (w *recordingWriter) WriteDeals(d []*models.Deal) error {
	w.deals = append(w.deals, d...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func seedDeals(t *testing.T) *storage.SQLStore {
	t.Helper()
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	n := NewNormalizer(config.DefaultPolicy(), utils.NewDiscardLogger())
	raws := []*models.RawListing{
		{Source: models.SourceTUG, ExternalID: "1", ResortName: "Elara, a Hilton Grand Vacations Club",
			Points: models.IntPtr(10000), Usage: models.UsageAnnual, AskingPrice: models.FloatPtr(8000)},
		{Source: models.SourceRedWeek, ExternalID: "2", ResortName: "Ocean Tower",
			Points: models.IntPtr(7000), Usage: models.UsageEOY, AskingPrice: models.FloatPtr(3000),
			AnnualMF: models.FloatPtr(1400)},
		{Source: models.SourceSMTSN, ExternalID: "3", ResortName: "Sunset Cove", Usage: models.UsageAnnual},
		{Source: models.SourceTUG, ExternalID: "4", ResortName: "Elara", Points: models.IntPtr(5000),
			Usage: models.UsageAnnual},
	}
	for _, r := range raws {
		_, err := store.UpsertListing(ctx, n.Normalize(r))
		require.NoError(t, err)
	}
	_, err = store.DeactivateMissing(ctx, models.SourceTUG, []string{"tug_1"})
	require.NoError(t, err)

	require.NoError(t, store.ReplaceReferenceFees(ctx, []*models.ReferenceFee{
		{ResortName: "Elara", ResortNameNormalized: "elara", AnnualMF: 1200, Year: 2026},
	}))
	return store
}

func TestDealServiceDeals(t *testing.T) {
	store := seedDeals(t)
	svc := NewDealService(store, config.DefaultPolicy(), utils.NewDiscardLogger())

	deals, err := svc.Deals(context.Background(), DealFilter{}, SortMFPerPointAsc)
	require.NoError(t, err)
	require.Len(t, deals, 3, "inactive listings are excluded")

	assert.Equal(t, "tug_1", deals[0].SourceID)
	assert.Equal(t, 0.12, *deals[0].MFPerPoint)
	assert.Equal(t, models.FeeFromReference, deals[0].FeeOrigin)
	assert.Equal(t, models.GradeGood, deals[0].Grade)

	assert.Equal(t, "redweek_2", deals[1].SourceID)
	assert.Equal(t, 0.4, *deals[1].MFPerPoint)
	assert.Equal(t, models.FeeFromListing, deals[1].FeeOrigin)

	assert.Equal(t, "smtsn_3", deals[2].SourceID, "unknown fee-per-point sorts last")
	assert.Nil(t, deals[2].MFPerPoint)

	filtered, err := svc.Deals(context.Background(),
		DealFilter{UsageTier: UsageTierAnnual, MaxMFPerPoint: models.FloatPtr(0.2)}, SortPriceDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"tug_1", "smtsn_3"}, ids(filtered))
}

func TestDealServiceSummaryAndExport(t *testing.T) {
	store := seedDeals(t)
	svc := NewDealService(store, config.DefaultPolicy(), utils.NewDiscardLogger())

	s, err := svc.Summary(context.Background(), DealFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalCount)
	assert.Equal(t, 0.26, *s.AvgMFPerPoint)
	assert.Equal(t, 0.12, *s.MinMFPerPoint)
	assert.Equal(t, "Elara, a Hilton Grand Vacations Club", s.BestDealResort)
	assert.Equal(t, 1, s.GradeCounts[models.GradeUnknown])

	w := &recordingWriter{}
	n, err := svc.Export(context.Background(), DealFilter{Sources: []models.Source{models.SourceTUG}}, SortNewest, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.deals, 1)
	assert.Equal(t, "tug_1", w.deals[0].SourceID)
}
