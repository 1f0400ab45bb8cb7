package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"timeshare-deals/models"
)

// DefaultKeywords identify records that belong to the tracked points program.
var DefaultKeywords = []string{"hgvc", "hilton grand", "hilton vacation", "hilton club"}

var (
	numberStripRe = regexp.MustCompile(`[,$]`)
	numberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)

	evenYearRe = regexp.MustCompile(`\beven\s*year`)
	oddYearRe  = regexp.MustCompile(`\bodd\s*year`)
	eoyRe      = regexp.MustCompile(`\bevery\s*other\s*year|biennial|\beoy\b`)

	bedroomsRe  = regexp.MustCompile(`(?i)(\d+)\s*(?:BR|Bed|bedroom)s?`)
	studioRe    = regexp.MustCompile(`(?i)\bstudio\b`)
	bathroomsRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:BA|Bath|bathroom)s?`)
)

// ExtractNumber pulls the first decimal or integer run out of currency or
// point text. It returns nil, not zero, when there are no digits.
func ExtractNumber(text string) *float64 {
	m := numberRe.FindString(numberStripRe.ReplaceAllString(text, ""))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseAmount parses a captured group like "1,234.50".
func ParseAmount(s string) *float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseCount parses a captured integer group like "7,000" or "7000.0".
func ParseCount(s string) *int {
	f := ParseAmount(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// FirstMatch returns group 1 of the first pattern that matches text.
func FirstMatch(text string, patterns ...*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

// InferUsage maps free text to a usage cycle. Order matters: the more
// specific even/odd phrasing must win over the generic EOY forms.
func InferUsage(text string) models.Usage {
	lower := strings.ToLower(text)
	switch {
	case evenYearRe.MatchString(lower):
		return models.UsageEOYEven
	case oddYearRe.MatchString(lower):
		return models.UsageEOYOdd
	case eoyRe.MatchString(lower):
		return models.UsageEOY
	}
	return models.UsageAnnual
}

// ExtractSeason picks the highest season tier named in text, defaulting to Platinum.
func ExtractSeason(text string) string {
	lower := strings.ToLower(text)
	for _, s := range []string{"platinum", "gold", "silver", "bronze"} {
		if strings.Contains(lower, s) {
			return strings.ToUpper(s[:1]) + s[1:]
		}
	}
	return "Platinum"
}

// UnitInfo is the bedroom/bathroom layout read from listing text.
type UnitInfo struct {
	Bedrooms  *int
	Bathrooms *float64
	UnitType  string
}

// ExtractUnitInfo reads bedrooms, bathrooms and a unit type label like "2BR".
func ExtractUnitInfo(text string) UnitInfo {
	var info UnitInfo
	if m := bedroomsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.Bedrooms = &n
		}
	}
	if studioRe.MatchString(text) {
		info.Bedrooms = models.IntPtr(0)
		info.UnitType = "Studio"
	}
	if m := bathroomsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			info.Bathrooms = &v
		}
	}
	if info.UnitType == "" && info.Bedrooms != nil {
		info.UnitType = UnitTypeFor(*info.Bedrooms)
	}
	return info
}

// UnitTypeFor renders a bedroom count as a unit type label.
func UnitTypeFor(bedrooms int) string {
	if bedrooms == 0 {
		return "Studio"
	}
	return strconv.Itoa(bedrooms) + "BR"
}

// MatchesKeywords is a case-insensitive substring test against any keyword.
func MatchesKeywords(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// NodeText returns the text of a selection with child blocks separated by
// spaces and whitespace collapsed.
func NodeText(sel *goquery.Selection) string {
	var parts []string
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		var t string
		if goquery.NodeName(c) == "#text" {
			t = c.Text()
		} else {
			t = NodeText(c)
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Resolve turns an href into an absolute URL against base.
func Resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
