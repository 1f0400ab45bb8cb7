package services

import (
	"sort"
	"strings"

	"timeshare-deals/config"
)

// MatchTier names the cascade step that produced a match.
type MatchTier string

const (
	TierExact     MatchTier = "exact"
	TierAlias     MatchTier = "alias"
	TierSubstring MatchTier = "substring"
	TierFuzzy     MatchTier = "fuzzy"
)

const (
	scoreExact     = 100
	scoreAlias     = 100
	scoreSubstring = 95
)

// Match is a resolved reference key. Scores are only comparable within a tier.
type Match struct {
	Key   string
	Score float64
	Tier  MatchTier
}

// Matcher resolves listing names against reference names with an
// alias → substring → fuzzy cascade.
type Matcher struct {
	aliases   []config.AliasRule
	threshold float64
}

func NewMatcher(policy *config.Policy) *Matcher {
	return &Matcher{aliases: policy.Aliases, threshold: policy.MatchThreshold}
}

// Canonical returns the canonical short name of the first alias rule with a
// variant contained in name.
func (m *Matcher) Canonical(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, rule := range m.aliases {
		for _, alias := range rule.Aliases {
			if alias != "" && strings.Contains(lower, strings.ToLower(alias)) {
				return strings.ToLower(rule.Canonical), true
			}
		}
	}
	return "", false
}

// Match finds the reference key for name. Both sides are normalized first;
// the returned Key is the reference string as given.
func (m *Matcher) Match(name string, refKeys []string) (Match, bool) {
	listing := NormalizeName(name)
	if listing == "" || len(refKeys) == 0 {
		return Match{}, false
	}

	refs := make([]string, len(refKeys))
	for i, k := range refKeys {
		refs[i] = NormalizeName(k)
	}

	if canonical, ok := m.Canonical(listing); ok {
		for i, ref := range refs {
			if ref == "" {
				continue
			}
			if strings.Contains(ref, canonical) || strings.Contains(canonical, ref) {
				return Match{Key: refKeys[i], Score: scoreAlias, Tier: TierAlias}, true
			}
		}
	}

	for i, ref := range refs {
		if ref == "" {
			continue
		}
		if strings.Contains(ref, listing) || strings.Contains(listing, ref) {
			return Match{Key: refKeys[i], Score: scoreSubstring, Tier: TierSubstring}, true
		}
	}

	best, bestScore := -1, -1.0
	for i, ref := range refs {
		if ref == "" {
			continue
		}
		if s := TokenSortRatio(listing, ref); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best >= 0 && bestScore >= m.threshold {
		return Match{Key: refKeys[best], Score: bestScore, Tier: TierFuzzy}, true
	}
	return Match{}, false
}

// TokenSortRatio is a 0-100 similarity that ignores word order: tokens are
// sorted and rejoined, then compared by 2*LCS/(len(a)+len(b)).
func TokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcsLength(ra, rb)) / float64(total)
}

// lcsLength is the longest common subsequence length, two-row DP.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
