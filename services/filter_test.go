package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeshare-deals/models"
)

func deal(id string, points *int, price, perPoint *float64, usage models.Usage) *models.Deal {
	return &models.Deal{
		Listing: &models.Listing{
			SourceID:    id,
			Source:      models.SourceTUG,
			Points:      points,
			AskingPrice: price,
			Usage:       usage,
			Season:      "Platinum",
			Location:    "Las Vegas",
		},
		Metrics: models.Metrics{MFPerPoint: perPoint},
	}
}

func ids(deals []*models.Deal) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.SourceID
	}
	return out
}

func TestRangeFiltersKeepUnknownValues(t *testing.T) {
	deals := []*models.Deal{
		deal("small", models.IntPtr(2000), models.FloatPtr(500), models.FloatPtr(0.30), models.UsageAnnual),
		deal("big", models.IntPtr(9000), models.FloatPtr(9000), models.FloatPtr(0.12), models.UsageAnnual),
		deal("blank", nil, nil, nil, models.UsageAnnual),
	}

	f := DealFilter{
		PointsMin:     models.IntPtr(5000),
		PriceMax:      models.FloatPtr(10000),
		MaxMFPerPoint: models.FloatPtr(0.2),
	}
	assert.Equal(t, []string{"big", "blank"}, ids(ApplyFilter(deals, f)))

	f = DealFilter{PointsMax: models.IntPtr(1000), PriceMin: models.FloatPtr(20000)}
	assert.Equal(t, []string{"blank"}, ids(ApplyFilter(deals, f)))
}

func TestCategoricalFilters(t *testing.T) {
	annual := deal("annual", nil, nil, nil, models.UsageAnnual)
	eoy := deal("eoy", nil, nil, nil, models.UsageEOYOdd)
	gold := deal("gold", nil, nil, nil, models.UsageAnnual)
	gold.Season = "Gold"
	gold.Location = "Orlando"
	gold.Source = models.SourceRedWeek
	all := []*models.Deal{annual, eoy, gold}

	tests := []struct {
		name string
		f    DealFilter
		want []string
	}{
		{"no predicates", DealFilter{}, []string{"annual", "eoy", "gold"}},
		{"annual only", DealFilter{UsageTier: UsageTierAnnual}, []string{"annual", "gold"}},
		{"annual and eoy", DealFilter{UsageTier: UsageTierAnnualEOY}, []string{"annual", "eoy", "gold"}},
		{"platinum", DealFilter{Seasons: []string{"platinum"}}, []string{"annual", "eoy"}},
		{"location", DealFilter{Locations: []string{"Orlando"}}, []string{"gold"}},
		{"source", DealFilter{Sources: []models.Source{models.SourceTUG}}, []string{"annual", "eoy"}},
		{"conjunction", DealFilter{Seasons: []string{"Platinum"}, UsageTier: UsageTierAnnual}, []string{"annual"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(ApplyFilter(all, tt.f)))
		})
	}
}

func TestSortDealsNullsLast(t *testing.T) {
	build := func() []*models.Deal {
		return []*models.Deal{
			deal("a", nil, models.FloatPtr(3000), models.FloatPtr(0.15), models.UsageAnnual),
			deal("b", nil, nil, nil, models.UsageAnnual),
			deal("c", nil, models.FloatPtr(1000), models.FloatPtr(0.09), models.UsageAnnual),
			deal("d", nil, models.FloatPtr(3000), models.FloatPtr(0.15), models.UsageAnnual),
			deal("e", nil, nil, nil, models.UsageAnnual),
		}
	}

	tests := []struct {
		key  SortKey
		want []string
	}{
		{SortMFPerPointAsc, []string{"c", "a", "d", "b", "e"}},
		{SortMFPerPointDesc, []string{"a", "d", "c", "b", "e"}},
		{SortPriceAsc, []string{"c", "a", "d", "b", "e"}},
		{SortPriceDesc, []string{"a", "d", "c", "b", "e"}},
	}
	for _, tt := range tests {
		deals := build()
		SortDeals(deals, tt.key)
		assert.Equal(t, tt.want, ids(deals), "sort %s", tt.key)
	}
}

func TestSortNewest(t *testing.T) {
	old := deal("old", nil, nil, nil, models.UsageAnnual)
	old.ScrapedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := deal("fresh", nil, nil, nil, models.UsageAnnual)
	fresh.ScrapedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	undated := deal("undated", nil, nil, nil, models.UsageAnnual)

	deals := []*models.Deal{undated, old, fresh}
	SortDeals(deals, SortNewest)
	assert.Equal(t, []string{"fresh", "old", "undated"}, ids(deals))
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortMFPerPointAsc, k)

	k, err = ParseSortKey("total_10yr_asc")
	require.NoError(t, err)
	assert.Equal(t, SortTenYearAsc, k)

	_, err = ParseSortKey("rating_desc")
	assert.Error(t, err)
}

func TestParseUsageTier(t *testing.T) {
	tests := []struct {
		in      string
		want    UsageTier
		wantErr bool
	}{
		{"", UsageTierAll, false},
		{"all", UsageTierAll, false},
		{"Annual", UsageTierAnnual, false},
		{" annual_eoy ", UsageTierAnnualEOY, false},
		{"anual", "", true},
		{"eoy", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUsageTier(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
