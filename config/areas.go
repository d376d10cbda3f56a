package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Area is a known locality offered by autocomplete
type Area struct {
	Name string `json:"name"`
	City string `json:"city"`
}

// AreaSeed is the layout of the optional area seed file
type AreaSeed struct {
	Areas []Area `json:"areas"`
}

// AreaReader is implemented by stores that keep the area catalogue
type AreaReader interface {
	ListAreas() ([]Area, error)
}

// DefaultAreas is the built-in area catalogue
var DefaultAreas = []Area{
	{Name: "Gurgaon", City: "Gurgaon"},
	{Name: "Golf Course Road", City: "Gurgaon"},
	{Name: "Sohna Road", City: "Gurgaon"},
	{Name: "DLF Phase 1", City: "Gurgaon"},
	{Name: "DLF Phase 2", City: "Gurgaon"},
	{Name: "DLF Phase 3", City: "Gurgaon"},
	{Name: "Sector 14", City: "Gurgaon"},
	{Name: "Sector 45", City: "Gurgaon"},
	{Name: "Sector 46", City: "Gurgaon"},
	{Name: "Sector 56", City: "Gurgaon"},
	{Name: "Sector 57", City: "Gurgaon"},
	{Name: "Sector 67", City: "Gurgaon"},
	// Add more areas here as needed
}

// LoadAreaSeed reads extra areas from a JSON file. An empty path yields no areas.
func LoadAreaSeed(path string) ([]Area, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read area seed file: %w", err)
	}

	var seed AreaSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse area seed file: %w", err)
	}
	return seed.Areas, nil
}

// GetAreaNames merges the built-in catalogue, the given extras and the areas
// stored in the database. Names are deduplicated case-insensitively, first spelling wins.
func GetAreaNames(db AreaReader, extra ...Area) ([]string, error) {
	stored, err := db.ListAreas()
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}

	seen := make(map[string]bool)
	names := make([]string, 0, len(DefaultAreas)+len(extra)+len(stored))
	for _, group := range [][]Area{DefaultAreas, extra, stored} {
		for _, area := range group {
			name := strings.TrimSpace(area.Name)
			key := NormalizeArea(name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// NormalizeArea lowercases a name and collapses inner whitespace
func NormalizeArea(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
