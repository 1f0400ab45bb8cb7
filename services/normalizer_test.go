package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeshare-deals/config"
	"timeshare-deals/models"
	"timeshare-deals/utils"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Elara, a Hilton Grand Vacations Club", "elara"},
		{"Hilton Grand Vacations Club on the Las Vegas Strip", "las vegas strip"},
		{"HGVC at the Flamingo", "flamingo"},
		{"The Bay Club at Waikoloa Beach Resort", "bay club waikoloa beach resort"},
		{"Ocean Tower – Waikoloa", "ocean tower waikoloa"},
		{"West 57th Street by Hilton Club", "west 57th street"},
		{"Waikīkī   Lagoon Tower", "waikiki lagoon tower"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeNameIsIdempotent(t *testing.T) {
	inputs := []string{
		"Elara, a Hilton Grand Vacations Club",
		"HGVC HGVC The at the Boulevard",
		"Hilton Grand Vacations at SeaWorld",
		"The Grand Islander by Hilton Grand Vacations",
		"Kings' Land — Waikoloa",
		"Parc Soleil by Hilton",
		"ÉLARA",
	}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once), "input %q", in)
	}
}

func TestInferLocation(t *testing.T) {
	n := NewNormalizer(config.DefaultPolicy(), utils.NewDiscardLogger())

	tests := []struct {
		name string
		want string
	}{
		{"Elara, a Hilton Grand Vacations Club", "Las Vegas"},
		{"Tuscany Village", "Orlando"},
		{"Kings' Land by Hilton Grand Vacations", "Other"},
		{"Kings Land", "Hawaii"},
		{"Craigendarroch Suites", "Scotland"},
		{"", "Other"},
	}
	for _, tt := range tests {
		if got := n.InferLocation(tt.name); got != tt.want {
			t.Errorf("InferLocation(%q): got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeListing(t *testing.T) {
	n := NewNormalizer(config.DefaultPolicy(), utils.NewDiscardLogger())
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	raw := &models.RawListing{
		Source:       models.SourceSMTSN,
		ExternalID:   "AD123",
		ResortName:   "  Sunset   Cove Resort ",
		LocationHint: "Florida",
		Points:       models.IntPtr(4800),
		ScrapedAt:    at,
	}
	l := n.Normalize(raw)

	assert.Equal(t, "smtsn_AD123", l.SourceID)
	assert.Equal(t, "Sunset Cove Resort", l.ResortName)
	assert.Equal(t, "sunset cove resort", l.ResortNameNormalized)
	assert.Equal(t, "Florida", l.Location, "hint is used when inference gives Other")
	assert.Equal(t, models.UsageAnnual, l.Usage)
	assert.Equal(t, 4800, *l.Points)
	assert.Nil(t, l.AskingPrice)
	assert.True(t, l.IsActive)
	assert.Equal(t, at, l.ScrapedAt)

	raw.ResortName = "Elara"
	assert.Equal(t, "Las Vegas", n.Normalize(raw).Location, "inferred location beats the hint")
}

func TestNormalizeAllDropsUnidentifiedAndDuplicates(t *testing.T) {
	n := NewNormalizer(config.DefaultPolicy(), utils.NewDiscardLogger())

	raw := []*models.RawListing{
		{Source: models.SourceTUG, ExternalID: "1", ResortName: "Elara"},
		{Source: models.SourceTUG, ExternalID: "", ResortName: "No ID"},
		{Source: models.SourceTUG, ExternalID: "2", ResortName: " "},
		{Source: models.SourceTUG, ExternalID: "1", ResortName: "Elara again"},
		{Source: models.SourceTUG, ExternalID: "3", ResortName: "Ocean Tower"},
	}
	out := n.NormalizeAll(raw)
	require.Len(t, out, 2)
	assert.Equal(t, "tug_1", out[0].SourceID)
	assert.Equal(t, "Elara", out[0].ResortName)
	assert.Equal(t, "tug_3", out[1].SourceID)
}
