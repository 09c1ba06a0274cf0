package screen

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/sells-group/txscreen/internal/model"
)

// DefaultThreshold is the minimum score for a blacklist hit. It was
// calibrated on sample data rather than derived.
const DefaultThreshold = 85

// Match is the best blacklist entry for a screened name.
type Match struct {
	Entry model.BlacklistEntry
	Score int
}

type blacklistName struct {
	normalized string
	sorted     string // tokens of normalized, sorted and space-joined
}

// Matcher fuzzy-matches names against a blacklist that was normalized once
// at construction. Best is O(len(blacklist)) per call, so a run costs
// O(transactions × blacklist); exact normalized names are answered from an
// index without scoring.
type Matcher struct {
	entries   []model.BlacklistEntry
	names     []blacklistName
	exact     map[string]int
	threshold int
}

// NewMatcher normalizes entries and returns a Matcher that reports hits at
// or above threshold.
func NewMatcher(entries []model.BlacklistEntry, threshold int) *Matcher {
	m := &Matcher{
		entries:   entries,
		names:     make([]blacklistName, len(entries)),
		exact:     make(map[string]int, len(entries)),
		threshold: threshold,
	}
	for i, e := range entries {
		n := NormalizeName(e.Name)
		m.names[i] = blacklistName{normalized: n, sorted: sortTokens(n)}
		if _, dup := m.exact[n]; !dup && n != "" {
			m.exact[n] = i
		}
	}
	return m
}

// Len returns the number of blacklist entries.
func (m *Matcher) Len() int {
	return len(m.entries)
}

// Threshold returns the configured hit threshold.
func (m *Matcher) Threshold() int {
	return m.threshold
}

// Best returns the highest-scoring entry for name. Equal scores resolve to
// the entry loaded first. ok is false for an empty blacklist or empty name.
func (m *Matcher) Best(name string) (Match, bool) {
	n := NormalizeName(name)
	if n == "" || len(m.entries) == 0 {
		return Match{}, false
	}
	if i, hit := m.exact[n]; hit {
		return Match{Entry: m.entries[i], Score: 100}, true
	}

	sorted := sortTokens(n)
	best, bestScore := -1, -1
	for i, bn := range m.names {
		s := max(ratio(n, bn.normalized), ratio(sorted, bn.sorted))
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return Match{Entry: m.entries[best], Score: bestScore}, true
}

// IsMatch reports whether name scores at or above the threshold against
// any blacklist entry.
func (m *Matcher) IsMatch(name string) bool {
	match, ok := m.Best(name)
	return ok && match.Score >= m.threshold
}

// IsMatch is the stateless form of Matcher.IsMatch. It normalizes the
// blacklist on every call; build a Matcher to screen more than one name.
func IsMatch(name string, blacklistNames []string, threshold int) bool {
	entries := make([]model.BlacklistEntry, len(blacklistNames))
	for i, n := range blacklistNames {
		entries[i] = model.BlacklistEntry{Name: n}
	}
	return NewMatcher(entries, threshold).IsMatch(name)
}

// Score returns the 0-100 similarity of two names after normalization: the
// better of the plain edit-distance ratio and the ratio over sorted tokens,
// so word order does not matter.
func Score(a, b string) int {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	return max(ratio(na, nb), ratio(sortTokens(na), sortTokens(nb)))
}

// ratio is 100 × (1 − distance / longer length), rounded, over runes.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
