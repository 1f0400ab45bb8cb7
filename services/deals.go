package services

import (
	"math"
	"strings"

	"timeshare-deals/config"
	"timeshare-deals/models"
)

// AnnualPoints annualizes a points allotment. EOY-family usage counts half,
// floored. Missing or zero points give 0.
func AnnualPoints(points *int, usage models.Usage) int {
	if points == nil || *points == 0 {
		return 0
	}
	if usage.IsEOY() {
		return *points / 2
	}
	return *points
}

// ResolveFee prefers the listing's own fee and falls back to the reference
// row. A fee of 0 counts as not reported.
func ResolveFee(listingFee *float64, ref *models.ReferenceFee) (*float64, models.FeeOrigin) {
	if listingFee != nil && *listingFee > 0 {
		v := *listingFee
		return &v, models.FeeFromListing
	}
	if ref != nil && ref.AnnualMF > 0 {
		v := ref.AnnualMF
		return &v, models.FeeFromReference
	}
	return nil, models.FeeMissing
}

// FeePerPoint is fee / annualPoints, or nil when either side is missing.
// The value is not rounded.
func FeePerPoint(fee *float64, annualPoints int) *float64 {
	if fee == nil || *fee <= 0 || annualPoints <= 0 {
		return nil
	}
	v := *fee / float64(annualPoints)
	return &v
}

// TenYearCost projects price, closing costs and fees over the policy
// horizon. EOY usage pays the fee every other year plus club dues every
// year. Not rounded; nil when price or fee is missing.
func TenYearCost(price, fee *float64, usage models.Usage, p *config.Policy) *float64 {
	if price == nil || fee == nil {
		return nil
	}
	years := float64(p.HorizonYears)
	total := *price + p.ClosingCosts
	if usage.IsEOY() {
		total += *fee*(years/2) + p.EOYClubDues*years
	} else {
		total += *fee * years
	}
	return &total
}

// GradeFor walks the inclusive upper bounds in ascending order.
func GradeFor(mfPerPoint *float64, g config.GradeThresholds) models.DealGrade {
	if mfPerPoint == nil {
		return models.GradeUnknown
	}
	switch v := *mfPerPoint; {
	case v <= g.Excellent:
		return models.GradeExcellent
	case v <= g.Good:
		return models.GradeGood
	case v <= g.Fair:
		return models.GradeFair
	default:
		return models.GradePoor
	}
}

// ComputeMetrics derives every presentation metric for one listing. ref may
// be nil. Rounding happens here and nowhere upstream.
func ComputeMetrics(l *models.Listing, ref *models.ReferenceFee, p *config.Policy) models.Metrics {
	annual := AnnualPoints(l.Points, l.Usage)
	fee, origin := ResolveFee(l.AnnualMF, ref)
	perPoint := FeePerPoint(fee, annual)
	grade := GradeFor(perPoint, p.Grades)

	return models.Metrics{
		AnnualPoints: annual,
		EffectiveMF:  roundPtr(fee, 2),
		FeeOrigin:    origin,
		MFPerPoint:   roundPtr(perPoint, 4),
		TotalTenYear: roundPtr(TenYearCost(l.AskingPrice, fee, l.Usage, p), 2),
		Grade:        grade,
		Stars:        grade.Stars(),
		GradeColor:   grade.Color(),
	}
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := roundTo(*v, places)
	return &r
}

// ReferenceIndex groups reference rows by normalized resort key.
type ReferenceIndex struct {
	byKey   map[string][]*models.ReferenceFee
	keys    []string
	matcher *Matcher
}

func NewReferenceIndex(refs []*models.ReferenceFee, matcher *Matcher) *ReferenceIndex {
	ix := &ReferenceIndex{byKey: make(map[string][]*models.ReferenceFee), matcher: matcher}
	for _, r := range refs {
		key := r.ResortNameNormalized
		if key == "" {
			key = r.ResortName
		}
		key = NormalizeName(key)
		if key == "" {
			continue
		}
		if _, ok := ix.byKey[key]; !ok {
			ix.keys = append(ix.keys, key)
		}
		ix.byKey[key] = append(ix.byKey[key], r)
	}
	return ix
}

// Lookup resolves the reference row for a listing: exact key first, then
// the matcher cascade. Among rows of the same resort the unit type wins,
// then the season, then the first row.
func (ix *ReferenceIndex) Lookup(l *models.Listing) (*models.ReferenceFee, Match, bool) {
	if len(ix.keys) == 0 {
		return nil, Match{}, false
	}
	key := l.ResortNameNormalized
	if key == "" {
		key = NormalizeName(l.ResortName)
	}

	if rows, ok := ix.byKey[key]; ok {
		return pickRow(rows, l), Match{Key: key, Score: scoreExact, Tier: TierExact}, true
	}

	m, ok := ix.matcher.Match(key, ix.keys)
	if !ok {
		return nil, Match{}, false
	}
	return pickRow(ix.byKey[m.Key], l), m, true
}

func pickRow(rows []*models.ReferenceFee, l *models.Listing) *models.ReferenceFee {
	if len(rows) == 0 {
		return nil
	}
	if l.UnitType != "" {
		for _, r := range rows {
			if strings.EqualFold(r.UnitType, l.UnitType) {
				return r
			}
		}
	}
	if l.Season != "" {
		for _, r := range rows {
			if strings.EqualFold(r.Season, l.Season) {
				return r
			}
		}
	}
	return rows[0]
}

// Enricher joins listings with reference fees and computes their metrics.
type Enricher struct {
	policy  *config.Policy
	matcher *Matcher
}

func NewEnricher(policy *config.Policy) *Enricher {
	return &Enricher{policy: policy, matcher: NewMatcher(policy)}
}

// Enrich builds one Deal per listing, in input order.
func (e *Enricher) Enrich(listings []*models.Listing, refs []*models.ReferenceFee) []*models.Deal {
	ix := NewReferenceIndex(refs, e.matcher)
	deals := make([]*models.Deal, 0, len(listings))

	for _, l := range listings {
		ref, m, ok := ix.Lookup(l)
		metrics := ComputeMetrics(l, ref, e.policy)
		if ok {
			metrics.MatchedKey = m.Key
			metrics.MatchScore = roundTo(m.Score, 2)
		}
		deals = append(deals, &models.Deal{Listing: l, Metrics: metrics})
	}
	return deals
}
