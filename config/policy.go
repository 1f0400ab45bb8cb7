package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GradeThresholds are inclusive upper bounds on fee-per-point.
type GradeThresholds struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Fair      float64 `yaml:"fair"`
}

// LocationRule maps a location label to name keywords. Rules are tried in
// order; the first hit wins.
type LocationRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// AliasRule lists surface variants of one canonical resort short name.
type AliasRule struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// Policy carries the tunable constants of matching and deal scoring.
type Policy struct {
	Grades          GradeThresholds `yaml:"grades"`
	MatchThreshold  float64         `yaml:"match_threshold"`
	ClosingCosts    float64         `yaml:"closing_costs"`
	EOYClubDues     float64         `yaml:"eoy_club_dues"`
	HorizonYears    int             `yaml:"horizon_years"`
	CatalogYear     int             `yaml:"catalog_year"`
	ProgramKeywords []string        `yaml:"program_keywords"`
	Locations       []LocationRule  `yaml:"locations"`
	Aliases         []AliasRule     `yaml:"aliases"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Grades:         GradeThresholds{Excellent: 0.10, Good: 0.15, Fair: 0.20},
		MatchThreshold: 75,
		ClosingCosts:   1100,
		EOYClubDues:    209,
		HorizonYears:   10,
		CatalogYear:    time.Now().Year(),
		ProgramKeywords: []string{
			"hgvc", "hilton grand", "hilton vacation", "hilton club",
		},
		Locations: []LocationRule{
			{"Las Vegas", []string{"vegas", "elara", "boulevard", "flamingo", "trump", "paradise"}},
			{"Orlando", []string{"orlando", "parc soleil", "seaworld", "tuscany", "international drive"}},
			{"Hawaii", []string{"hawaii", "waikiki", "waikoloa", "maui", "kona", "kings land",
				"ocean tower", "grand islander", "lagoon tower", "kalia"}},
			{"New York", []string{"new york", "manhattan", "midtown", "west 57"}},
			{"Miami", []string{"miami", "south beach", "mcalpin"}},
			{"Park City", []string{"park city", "sunrise"}},
			{"San Diego", []string{"san diego", "marbrisa"}},
			{"Carlsbad", []string{"carlsbad"}},
			{"Myrtle Beach", []string{"myrtle", "anderson ocean", "ocean 22"}},
			{"Scotland", []string{"scotland", "craigendarroch"}},
			{"Japan", []string{"japan", "odawara", "okinawa", "sesoko"}},
			{"Italy", []string{"italy", "tuscany"}},
		},
		Aliases: []AliasRule{
			{"elara", []string{"elara", "elara grand", "elara by hilton"}},
			{"boulevard", []string{"on the boulevard", "boulevard", "las vegas boulevard"}},
			{"flamingo", []string{"at the flamingo", "flamingo"}},
			{"trump", []string{"trump international", "trump"}},
			{"paradise", []string{"paradise", "paradise las vegas"}},
			{"parc soleil", []string{"parc soleil", "parc soliel"}},
			{"seaworld", []string{"at seaworld", "seaworld", "sea world"}},
			{"tuscany village", []string{"tuscany village", "tuscany"}},
			{"ocean tower", []string{"ocean tower", "waikoloa ocean tower"}},
			{"bay club", []string{"bay club", "waikoloa bay club"}},
			{"kings land", []string{"kings land", "king's land", "kingsland"}},
			{"grand islander", []string{"grand islander"}},
			{"lagoon tower", []string{"lagoon tower", "waikiki lagoon tower"}},
			{"kalia", []string{"kalia tower", "kalia suites"}},
			{"west 57th", []string{"west 57th", "west 57", "w 57th", "57th street"}},
			{"anderson ocean", []string{"anderson ocean", "ocean plaza"}},
			{"mcalpin", []string{"mcalpin", "mcalpin ocean plaza"}},
			{"marbrisa", []string{"marbrisa", "carlsbad"}},
			{"sunrise lodge", []string{"sunrise lodge", "park city"}},
			{"valdoro", []string{"valdoro", "breckenridge"}},
			{"craigendarroch", []string{"craigendarroch", "scotland"}},
		},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("policy: parse %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects non-contiguous grade ladders and out-of-range thresholds.
func (p *Policy) Validate() error {
	g := p.Grades
	if !(g.Excellent > 0 && g.Excellent <= g.Good && g.Good <= g.Fair) {
		return errors.New("policy: grade thresholds must satisfy 0 < excellent <= good <= fair")
	}
	if p.MatchThreshold < 0 || p.MatchThreshold > 100 {
		return fmt.Errorf("policy: match_threshold %.1f outside 0-100", p.MatchThreshold)
	}
	if p.HorizonYears <= 0 {
		return fmt.Errorf("policy: horizon_years must be positive, got %d", p.HorizonYears)
	}
	return nil
}
