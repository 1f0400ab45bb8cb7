package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeshare-deals/models"
)

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"$1,234.56", models.FloatPtr(1234.56)},
		{"7,000 Points", models.FloatPtr(7000)},
		{"Price: $ 12", models.FloatPtr(12)},
		{"call for price", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := ExtractNumber(tt.in)
		if tt.want == nil {
			if got != nil {
				t.Errorf("ExtractNumber(%q): got %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != *tt.want {
			t.Errorf("ExtractNumber(%q): got %v, want %v", tt.in, got, *tt.want)
		}
	}
}

func TestInferUsage(t *testing.T) {
	tests := []struct {
		text string
		want models.Usage
	}{
		{"7,000 points Even Year usage", models.UsageEOYEven},
		{"odd years only", models.UsageEOYOdd},
		{"Every Other Year", models.UsageEOY},
		{"biennial ownership", models.UsageEOY},
		{"4800 pts EOY", models.UsageEOY},
		{"every other year, even year use", models.UsageEOYEven},
		{"annual points", models.UsageAnnual},
		{"", models.UsageAnnual},
	}
	for _, tt := range tests {
		if got := InferUsage(tt.text); got != tt.want {
			t.Errorf("InferUsage(%q): got %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractSeason(t *testing.T) {
	assert.Equal(t, "Gold", ExtractSeason("GOLD season week"))
	assert.Equal(t, "Platinum", ExtractSeason("gold or platinum"))
	assert.Equal(t, "Bronze", ExtractSeason("bronze"))
	assert.Equal(t, "Platinum", ExtractSeason("no season given"))
}

func TestExtractUnitInfo(t *testing.T) {
	info := ExtractUnitInfo("2 Bedroom / 2.5 Bath lock-off")
	require.NotNil(t, info.Bedrooms)
	require.NotNil(t, info.Bathrooms)
	assert.Equal(t, 2, *info.Bedrooms)
	assert.Equal(t, 2.5, *info.Bathrooms)
	assert.Equal(t, "2BR", info.UnitType)

	studio := ExtractUnitInfo("Studio, 1 BA")
	require.NotNil(t, studio.Bedrooms)
	assert.Equal(t, 0, *studio.Bedrooms)
	assert.Equal(t, "Studio", studio.UnitType)

	none := ExtractUnitInfo("no layout here")
	assert.Nil(t, none.Bedrooms)
	assert.Nil(t, none.Bathrooms)
	assert.Empty(t, none.UnitType)
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, MatchesKeywords("Elara, a Hilton Grand Vacations Club", DefaultKeywords))
	assert.True(t, MatchesKeywords("HGVC points", DefaultKeywords))
	assert.False(t, MatchesKeywords("Marriott Vacation Club", DefaultKeywords))
}

func TestNodeTextSeparatesBlocks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="x"><span>7,000</span><span>Points</span>  <b>Even</b>Year</div>`))
	require.NoError(t, err)
	assert.Equal(t, "7,000 Points Even Year", NodeText(doc.Find("#x")))
}

func TestFiltersAllows(t *testing.T) {
	f := Filters{PriceMin: models.FloatPtr(1000), PriceMax: models.FloatPtr(5000)}
	assert.True(t, f.Allows(nil))
	assert.True(t, f.Allows(models.FloatPtr(1000)))
	assert.False(t, f.Allows(models.FloatPtr(999)))
	assert.False(t, f.Allows(models.FloatPtr(5001)))
}

type stubExtractor struct{ deps Deps }

func (s *stubExtractor) Source() models.Source { return models.SourceTUG }
func (s *stubExtractor) ScrapeListings(context.Context, Filters) ([]*models.RawListing, error) {
	return nil, nil
}
func (s *stubExtractor) ParseRecord(*goquery.Selection, RecordContext) Result { return Skip("stub") }

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	r.Register(models.SourceTUG, func(d Deps) Extractor { return &stubExtractor{deps: d} })

	ex, err := r.Build(models.SourceTUG, Deps{})
	require.NoError(t, err)
	stub := ex.(*stubExtractor)
	assert.Equal(t, DefaultKeywords, stub.deps.Keywords)
	assert.NotNil(t, stub.deps.Logger)

	_, err = r.Build(models.SourceSMTSN, Deps{})
	assert.True(t, errors.Is(err, ErrUnknownSource))
	assert.Equal(t, []models.Source{models.SourceTUG}, r.Sources())
}
