package services

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"timeshare-deals/config"
	"timeshare-deals/models"
	"timeshare-deals/utils"
)

const locationOther = "Other"

var (
	// brand suffixes: "Elara, a Hilton Grand Vacations Club", "West 57th Street by Hilton Club"
	brandSuffixRe = regexp.MustCompile(`(?i),?\s*\ban? hilton\b.*$`)
	byHiltonRe    = regexp.MustCompile(`(?i)\s+by hilton.*$`)

	namePrefixes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^hilton grand vacations?\s*(club)?\s*`),
		regexp.MustCompile(`(?i)^hgv(c)?\s*`),
		regexp.MustCompile(`(?i)^the\s+`),
	}

	fillerRe = regexp.MustCompile(`(?i)\b(at the|on the|at|by)\b\s*`)
	dashRe   = regexp.MustCompile(`\s*[-–—]\s*`)
)

// NormalizeName reduces a resort name to its canonical join key. The result
// is a fixpoint: NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(raw string) string {
	name := raw
	for i := 0; i < 8; i++ {
		next := normalizeOnce(foldUnicode(name))
		if next == name {
			break
		}
		name = next
	}
	return name
}

func normalizeOnce(name string) string {
	name = strings.TrimSpace(name)
	name = brandSuffixRe.ReplaceAllString(name, "")
	name = byHiltonRe.ReplaceAllString(name, "")

	for {
		before := name
		for _, re := range namePrefixes {
			name = re.ReplaceAllString(name, "")
		}
		if name == before {
			break
		}
	}

	name = fillerRe.ReplaceAllString(name, "")
	name = dashRe.ReplaceAllString(name, " ")
	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimSpace(strings.ToLower(name))
}

// foldUnicode applies NFKC and drops combining marks so "Waikīkī" and
// "Waikiki" share a key.
func foldUnicode(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalizer turns extractor output into canonical listings.
type Normalizer struct {
	locations []config.LocationRule
	logger    *utils.Logger
}

func NewNormalizer(policy *config.Policy, logger *utils.Logger) *Normalizer {
	return &Normalizer{locations: policy.Locations, logger: logger}
}

// NormalizeName is the method form of the package-level pipeline.
func (n *Normalizer) NormalizeName(raw string) string { return NormalizeName(raw) }

// InferLocation returns the first location whose keywords hit the
// lowercased name, or "Other".
func (n *Normalizer) InferLocation(resortName string) string {
	lower := strings.ToLower(foldUnicode(resortName))
	if lower == "" {
		return locationOther
	}
	for _, rule := range n.locations {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return rule.Name
			}
		}
	}
	return locationOther
}

// Normalize converts one raw record. A location hint from the source is
// only used when the name alone gives "Other".
func (n *Normalizer) Normalize(raw *models.RawListing) *models.Listing {
	name := strings.Join(strings.Fields(raw.ResortName), " ")

	location := n.InferLocation(name)
	if location == locationOther && strings.TrimSpace(raw.LocationHint) != "" {
		location = strings.TrimSpace(raw.LocationHint)
	}

	usage := raw.Usage
	if usage == "" {
		usage = models.UsageAnnual
	}

	return &models.Listing{
		Source:               raw.Source,
		SourceID:             raw.SourceID(),
		ResortName:           name,
		ResortNameNormalized: NormalizeName(name),
		UnitType:             raw.UnitType,
		Season:               raw.Season,
		Location:             location,
		Points:               raw.Points,
		Usage:                usage,
		AskingPrice:          raw.AskingPrice,
		AnnualMF:             raw.AnnualMF,
		Bedrooms:             raw.Bedrooms,
		Bathrooms:            raw.Bathrooms,
		ListingURL:           strings.TrimSpace(raw.ListingURL),
		ScrapedAt:            raw.ScrapedAt,
		IsActive:             true,
	}
}

// NormalizeAll drops records without identity and duplicate source ids.
func (n *Normalizer) NormalizeAll(raw []*models.RawListing) []*models.Listing {
	seen := utils.NewSeenSet()
	out := make([]*models.Listing, 0, len(raw))

	for _, r := range raw {
		if strings.TrimSpace(r.ExternalID) == "" || strings.TrimSpace(r.ResortName) == "" {
			n.logger.Warn("[normalizer] Dropping %s record without identity: %q", r.Source, r.ResortName)
			continue
		}
		if !seen.Add(r.SourceID()) {
			n.logger.Debug("[normalizer] Duplicate %s skipped", r.SourceID())
			continue
		}
		out = append(out, n.Normalize(r))
	}

	n.logger.Info("[normalizer] Normalized %d → %d listings (dropped %d)",
		len(raw), len(out), len(raw)-len(out))
	return out
}
