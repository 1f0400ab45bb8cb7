package services

import (
	"fmt"
	"sort"
	"strings"

	"timeshare-deals/models"
)

// UsageTier narrows deals by usage cycle.
type UsageTier string

const (
	UsageTierAll       UsageTier = "all"
	UsageTierAnnual    UsageTier = "annual"
	UsageTierAnnualEOY UsageTier = "annual_eoy"
)

// ParseUsageTier maps a flag or query value to a tier. Empty means all.
func ParseUsageTier(s string) (UsageTier, error) {
	switch tier := UsageTier(strings.ToLower(strings.TrimSpace(s))); tier {
	case "", UsageTierAll:
		return UsageTierAll, nil
	case UsageTierAnnual, UsageTierAnnualEOY:
		return tier, nil
	}
	return "", fmt.Errorf("unknown usage tier %q (want all, annual or annual_eoy)", s)
}

// DealFilter is a conjunction of optional predicates. Zero values disable a
// predicate. Range bounds never exclude a deal whose value is unknown.
type DealFilter struct {
	Seasons       []string
	UsageTier     UsageTier
	Locations     []string
	Sources       []models.Source
	PointsMin     *int
	PointsMax     *int
	PriceMin      *float64
	PriceMax      *float64
	MaxMFPerPoint *float64
}

// ApplyFilter returns the deals passing every predicate, in input order.
func ApplyFilter(deals []*models.Deal, f DealFilter) []*models.Deal {
	out := make([]*models.Deal, 0, len(deals))
	for _, d := range deals {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

// Matches reports whether one deal passes the filter.
func (f DealFilter) Matches(d *models.Deal) bool {
	if len(f.Seasons) > 0 && !containsFold(f.Seasons, d.Season) {
		return false
	}
	switch f.UsageTier {
	case UsageTierAnnual:
		if d.Usage != models.UsageAnnual {
			return false
		}
	case UsageTierAnnualEOY:
		if d.Usage != models.UsageAnnual && !d.Usage.IsEOY() {
			return false
		}
	}
	if len(f.Locations) > 0 && !containsFold(f.Locations, d.Location) {
		return false
	}
	if len(f.Sources) > 0 {
		found := false
		for _, s := range f.Sources {
			if s == d.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if d.Points != nil {
		if f.PointsMin != nil && *d.Points < *f.PointsMin {
			return false
		}
		if f.PointsMax != nil && *d.Points > *f.PointsMax {
			return false
		}
	}
	if d.AskingPrice != nil {
		if f.PriceMin != nil && *d.AskingPrice < *f.PriceMin {
			return false
		}
		if f.PriceMax != nil && *d.AskingPrice > *f.PriceMax {
			return false
		}
	}
	if f.MaxMFPerPoint != nil && d.MFPerPoint != nil && *d.MFPerPoint > *f.MaxMFPerPoint {
		return false
	}
	return true
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// SortKey is one of the supported (field, direction) orderings.
type SortKey string

const (
	SortMFPerPointAsc  SortKey = "mf_per_point_asc"
	SortMFPerPointDesc SortKey = "mf_per_point_desc"
	SortPriceAsc       SortKey = "price_asc"
	SortPriceDesc      SortKey = "price_desc"
	SortPointsAsc      SortKey = "points_asc"
	SortPointsDesc     SortKey = "points_desc"
	SortTenYearAsc     SortKey = "total_10yr_asc"
	SortNewest         SortKey = "newest"
)

var sortKeys = []SortKey{
	SortMFPerPointAsc, SortMFPerPointDesc, SortPriceAsc, SortPriceDesc,
	SortPointsAsc, SortPointsDesc, SortTenYearAsc, SortNewest,
}

// ParseSortKey accepts any supported key; empty means fee-per-point ascending.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortMFPerPointAsc, nil
	}
	for _, k := range sortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// SortDeals sorts in place. Unknown values always go last, whatever the
// direction, and ties keep their input order.
func SortDeals(deals []*models.Deal, key SortKey) {
	value, asc := sortField(key)
	sort.SliceStable(deals, func(i, j int) bool {
		a, aok := value(deals[i])
		b, bok := value(deals[j])
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		if asc {
			return a < b
		}
		return a > b
	})
}

func sortField(key SortKey) (func(*models.Deal) (float64, bool), bool) {
	fromFloat := func(p *float64) (float64, bool) {
		if p == nil {
			return 0, false
		}
		return *p, true
	}

	switch key {
	case SortMFPerPointDesc:
		return func(d *models.Deal) (float64, bool) { return fromFloat(d.MFPerPoint) }, false
	case SortPriceAsc, SortPriceDesc:
		return func(d *models.Deal) (float64, bool) { return fromFloat(d.AskingPrice) }, key == SortPriceAsc
	case SortPointsAsc, SortPointsDesc:
		return func(d *models.Deal) (float64, bool) {
			if d.Points == nil {
				return 0, false
			}
			return float64(*d.Points), true
		}, key == SortPointsAsc
	case SortTenYearAsc:
		return func(d *models.Deal) (float64, bool) { return fromFloat(d.TotalTenYear) }, true
	case SortNewest:
		return func(d *models.Deal) (float64, bool) {
			if d.ScrapedAt.IsZero() {
				return 0, false
			}
			return float64(d.ScrapedAt.UnixNano()), true
		}, false
	default:
		return func(d *models.Deal) (float64, bool) { return fromFloat(d.MFPerPoint) }, true
	}
}
