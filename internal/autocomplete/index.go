// Package autocomplete suggests known area names for partial input.
package autocomplete

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/internal/metrics"
	"ggnhomes/server/internal/models"
)

const (
	DefaultMaxSuggestions = 10

	// Added to the score of names that start with the input
	prefixBonus = 1.0
)

type entry struct {
	name  string
	lower string
}

// Index holds an immutable snapshot of area names. Lookups share the
// snapshot; Replace swaps it atomically.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	max     int
	logger  *logrus.Logger
}

func NewIndex(names []string, maxSuggestions int, logger *logrus.Logger) *Index {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if maxSuggestions <= 0 {
		maxSuggestions = DefaultMaxSuggestions
	}
	idx := &Index{max: maxSuggestions, logger: logger}
	idx.Replace(names)
	return idx
}

// Replace installs a new set of names. Blank names are dropped and
// case-insensitive duplicates keep their first spelling.
func (i *Index) Replace(names []string) {
	entries := make([]entry, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		lower := strings.ToLower(n)
		if n == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		entries = append(entries, entry{name: n, lower: lower})
	}

	i.mu.Lock()
	i.entries = entries
	i.mu.Unlock()

	metrics.AutocompleteIndexSize.Set(float64(len(entries)))
	i.logger.WithField("areas", len(entries)).Debug("Autocomplete index replaced")
}

func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Score rates how well name matches query, both lowercased. Names that do not
// contain the query score zero. A match earns the share of the name the query
// covers, plus a bonus when the name starts with it.
func Score(lowerName, lowerQuery string) float64 {
	if lowerQuery == "" || !strings.Contains(lowerName, lowerQuery) {
		return 0
	}
	score := float64(len(lowerQuery)) / float64(len(lowerName))
	if strings.HasPrefix(lowerName, lowerQuery) {
		score += prefixBonus
	}
	return score
}

// Suggest returns at most the configured number of names containing text,
// best match first. Ties go to the shorter name, then alphabetical order.
func (i *Index) Suggest(text string) []models.Suggestion {
	metrics.AutocompleteRequests.Inc()

	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return []models.Suggestion{}
	}

	i.mu.RLock()
	entries := i.entries
	i.mu.RUnlock()

	type scored struct {
		entry
		score float64
	}
	matches := make([]scored, 0)
	for _, e := range entries {
		if s := Score(e.lower, query); s > 0 {
			matches = append(matches, scored{entry: e, score: s})
		}
	}

	sort.Slice(matches, func(a, b int) bool {
		ma, mb := matches[a], matches[b]
		if ma.score != mb.score {
			return ma.score > mb.score
		}
		if len(ma.name) != len(mb.name) {
			return len(ma.name) < len(mb.name)
		}
		if ma.lower != mb.lower {
			return ma.lower < mb.lower
		}
		return ma.name < mb.name
	})

	if len(matches) > i.max {
		matches = matches[:i.max]
	}
	suggestions := make([]models.Suggestion, 0, len(matches))
	for _, m := range matches {
		suggestions = append(suggestions, models.Suggestion{Name: m.name, MatchScore: m.score})
	}
	return suggestions
}
