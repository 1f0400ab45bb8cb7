package models

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the resale marketplace a listing was scraped from.
type Source string

const (
	SourceTUG     Source = "tug"
	SourceRedWeek Source = "redweek"
	SourceSMTSN   Source = "smtsn"
)

// AllSources lists every supported marketplace in display order.
var AllSources = []Source{SourceTUG, SourceRedWeek, SourceSMTSN}

// ParseSource maps a case-insensitive name to a known Source.
func ParseSource(s string) (Source, bool) {
	want := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, src := range AllSources {
		if src == want {
			return src, true
		}
	}
	return "", false
}

// Usage is the recurrence cycle of a points allotment.
type Usage string

const (
	UsageAnnual  Usage = "Annual"
	UsageEOY     Usage = "EOY"
	UsageEOYEven Usage = "EOY-Even"
	UsageEOYOdd  Usage = "EOY-Odd"
)

// IsEOY reports whether the usage belongs to the every-other-year family.
func (u Usage) IsEOY() bool {
	return strings.HasPrefix(strings.ToUpper(string(u)), "EOY")
}

// RawListing is one record as it comes out of a source extractor, before
// name normalization and location inference. Nil pointers mean the value
// was not present on the page.
type RawListing struct {
	Source       Source
	ExternalID   string
	ResortName   string
	LocationHint string
	UnitType     string
	Season       string
	Usage        Usage
	Points       *int
	AskingPrice  *float64
	AnnualMF     *float64
	Bedrooms     *int
	Bathrooms    *float64
	ListingURL   string
	ScrapedAt    time.Time
}

// SourceID is the externally visible, re-scrape stable identity.
func (r *RawListing) SourceID() string {
	return ListingKey(r.Source, r.ExternalID)
}

// ListingKey builds the "{source}_{external_id}" dedup key.
func ListingKey(source Source, externalID string) string {
	return fmt.Sprintf("%s_%s", source, externalID)
}

// Listing is the canonical, stored resale offer.
type Listing struct {
	ID                   int64     `json:"id"`
	Source               Source    `json:"source"`
	SourceID             string    `json:"source_id"`
	ResortName           string    `json:"resort_name"`
	ResortNameNormalized string    `json:"resort_name_normalized"`
	UnitType             string    `json:"unit_type,omitempty"`
	Season               string    `json:"season,omitempty"`
	Location             string    `json:"location"`
	Points               *int      `json:"points"`
	Usage                Usage     `json:"usage"`
	AskingPrice          *float64  `json:"asking_price"`
	AnnualMF             *float64  `json:"annual_mf"`
	Bedrooms             *int      `json:"bedrooms"`
	Bathrooms            *float64  `json:"bathrooms"`
	ListingURL           string    `json:"listing_url"`
	ScrapedAt            time.Time `json:"scraped_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	IsActive             bool      `json:"is_active"`
}

// ReferenceFee is one row of the authoritative maintenance fee table.
type ReferenceFee struct {
	ID                   int64    `json:"id"`
	ResortName           string   `json:"resort_name"`
	ResortNameNormalized string   `json:"resort_name_normalized"`
	UnitType             string   `json:"unit_type,omitempty"`
	Season               string   `json:"season,omitempty"`
	Points               *int     `json:"points"`
	AnnualMF             float64  `json:"annual_mf"`
	MFPerPoint           *float64 `json:"mf_per_point"`
	Year                 int      `json:"year"`
	Source               string   `json:"source"`
}

// IntPtr and FloatPtr are small helpers for building nullable fields.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
