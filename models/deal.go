package models

// DealGrade classifies a listing by fee-per-point.
type DealGrade string

const (
	GradeExcellent DealGrade = "excellent"
	GradeGood      DealGrade = "good"
	GradeFair      DealGrade = "fair"
	GradePoor      DealGrade = "poor"
	GradeUnknown   DealGrade = "unknown"
)

// AllGrades is ordered best to worst, unknown last.
var AllGrades = []DealGrade{GradeExcellent, GradeGood, GradeFair, GradePoor, GradeUnknown}

// Stars returns the star rating shown next to a grade.
func (g DealGrade) Stars() string {
	switch g {
	case GradeExcellent:
		return "★★★"
	case GradeGood:
		return "★★☆"
	case GradeFair:
		return "★☆☆"
	case GradePoor:
		return "☆☆☆"
	default:
		return "???"
	}
}

// Color is the background colour used for a grade row.
func (g DealGrade) Color() string {
	switch g {
	case GradeExcellent:
		return "#d4edda"
	case GradeGood:
		return "#fff3cd"
	case GradeFair:
		return "#ffe5d0"
	case GradePoor:
		return "#f8d7da"
	default:
		return "#f0f0f0"
	}
}

// FeeOrigin records where the fee used for the metrics came from.
type FeeOrigin string

const (
	FeeFromListing   FeeOrigin = "listing"
	FeeFromReference FeeOrigin = "reference"
	FeeMissing       FeeOrigin = "none"
)

// Metrics are the derived, per-presentation values for one listing.
// Rounded once: MFPerPoint to 4 places, TotalTenYear to 2.
type Metrics struct {
	AnnualPoints int       `json:"annual_points"`
	EffectiveMF  *float64  `json:"effective_mf"`
	FeeOrigin    FeeOrigin `json:"fee_origin"`
	MFPerPoint   *float64  `json:"mf_per_point"`
	TotalTenYear *float64  `json:"total_10yr"`
	Grade        DealGrade `json:"deal_grade"`
	Stars        string    `json:"deal_grade_stars"`
	GradeColor   string    `json:"grade_color"`
	MatchedKey   string    `json:"matched_reference,omitempty"`
	MatchScore   float64   `json:"match_score,omitempty"`
}

// Deal is a listing joined with its metrics, the unit the presentation
// layer works with.
type Deal struct {
	*Listing
	Metrics
}

// Summary holds aggregate statistics over a deal set.
type Summary struct {
	TotalCount      int               `json:"total_count"`
	AvgMFPerPoint   *float64          `json:"avg_mf_per_point"`
	MinMFPerPoint   *float64          `json:"min_mf_per_point"`
	BestDealResort  string            `json:"best_deal_resort,omitempty"`
	GradeCounts     map[DealGrade]int `json:"grade_counts"`
	ByLocation      map[string]int    `json:"by_location"`
	BySource        map[Source]int    `json:"by_source"`
	CheapestTenYear *Deal             `json:"-"`
}
