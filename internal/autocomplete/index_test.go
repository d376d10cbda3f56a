package autocomplete

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"ggnhomes/server/internal/models"
)

func names(suggestions []models.Suggestion) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Name)
	}
	return out
}

func newTestIndex(areas []string) *Index {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewIndex(areas, 0, logger)
}

func TestSuggest(t *testing.T) {
	idx := newTestIndex([]string{
		"Sector 56", "Sector 57", "Sector 5", "Sohna Road", "Golf Course Road",
		"DLF Phase 1", "Golf Course Extension Road", "Gurgaon",
	})

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Empty input", "", []string{}},
		{"Whitespace input", "   ", []string{}},
		{"Prefix wins over substring", "so", []string{"Sohna Road"}},
		{"Shorter name first on prefix", "sector 5", []string{"Sector 5", "Sector 56", "Sector 57"}},
		{"Case-insensitive", "GOLF", []string{"Golf Course Road", "Golf Course Extension Road"}},
		{"Substring match", "road", []string{"Sohna Road", "Golf Course Road", "Golf Course Extension Road"}},
		{"No match", "rohini", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, names(idx.Suggest(tt.input)))
		})
	}
}

func TestSuggest_TiesAreDeterministic(t *testing.T) {
	idx := newTestIndex([]string{"Sector 57", "Sector 56", "Sector 58"})

	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"Sector 56", "Sector 57", "Sector 58"}, names(idx.Suggest("sector")))
	}
}

func TestSuggest_Cap(t *testing.T) {
	areas := make([]string, 0, 30)
	for i := 1; i <= 30; i++ {
		areas = append(areas, fmt.Sprintf("Sector %d", i))
	}
	idx := newTestIndex(areas)

	result := idx.Suggest("sector")
	assert.Len(t, result, DefaultMaxSuggestions)
	// Shortest names come first among equal prefixes
	assert.Equal(t, "Sector 1", result[0].Name)
}

func TestScore(t *testing.T) {
	assert.Zero(t, Score("sohna road", "golf"))
	assert.Zero(t, Score("sohna road", ""))
	assert.InDelta(t, 1.0+0.2, Score("sohna road", "so"), 1e-9)
	assert.InDelta(t, 0.4, Score("sohna road", "road"), 1e-9)
	assert.Greater(t, Score("sector 5", "sector"), Score("sector 56", "sector"))
}

func TestReplace(t *testing.T) {
	idx := newTestIndex([]string{"Sector 56"})
	assert.Equal(t, 1, idx.Size())

	idx.Replace([]string{"Rohini", "rohini", " ", "Dwarka"})
	assert.Equal(t, 2, idx.Size())
	assert.Empty(t, idx.Suggest("sector"))
	assert.Equal(t, []string{"Rohini"}, names(idx.Suggest("roh")))
}

func TestConcurrentSuggestAndReplace(t *testing.T) {
	idx := newTestIndex([]string{"Sector 56", "Sector 57"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			result := idx.Suggest("sector")
			assert.LessOrEqual(t, len(result), DefaultMaxSuggestions)
		}()
		go func(i int) {
			defer wg.Done()
			idx.Replace([]string{fmt.Sprintf("Sector %d", i), "Sector 56"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, idx.Size())
}
