package recommend

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	sectorPattern   = regexp.MustCompile(`(?i)\bsector[\s\-]*(\d+[a-z]?)\b`)
	locatorPattern  = regexp.MustCompile(`(?i)(?:^|\s)(?:in|near)\s+(.+)$`)
	trailingPattern = regexp.MustCompile(`[\s[:punct:]]+$`)
)

// noiseWords never name a place on their own
var noiseWords = map[string]bool{
	"bhk": true, "rk": true, "bed": true, "beds": true, "bedroom": true, "bedrooms": true,
	"flat": true, "flats": true, "apartment": true, "apartments": true, "house": true,
	"villa": true, "villas": true, "plot": true, "plots": true, "pg": true, "studio": true,
	"room": true, "rooms": true, "floor": true, "builder": true, "independent": true,
	"furnished": true, "semi": true, "unfurnished": true, "property": true, "properties": true,
	"rent": true, "rental": true, "sale": true, "buy": true, "for": true, "in": true, "near": true,
	"under": true, "below": true, "above": true, "upto": true, "to": true, "and": true, "with": true,
	"lakh": true, "lakhs": true, "lac": true, "lacs": true, "crore": true, "crores": true, "cr": true,
	"k": true, "rs": true, "inr": true, "budget": true, "cheap": true, "new": true,
}

// ExtractAreaToken pulls a place-like token out of a free-text search.
// Rules are tried in order and the first that yields a value wins:
//
//  1. "sector N" in any spelling ("sector56", "SECTOR-56") becomes "Sector N".
//  2. The text following " in " or " near ", without trailing punctuation.
//  3. The last word that is not a configuration, price or property-type word
//     and carries no digit.
//
// An empty string means the query names no place.
func ExtractAreaToken(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	if m := sectorPattern.FindStringSubmatch(query); m != nil {
		return "Sector " + strings.ToUpper(m[1])
	}

	if m := locatorPattern.FindStringSubmatch(query); m != nil {
		if place := trailingPattern.ReplaceAllString(strings.TrimSpace(m[1]), ""); place != "" {
			return place
		}
	}

	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i := len(words) - 1; i >= 0; i-- {
		w := words[i]
		if noiseWords[strings.ToLower(w)] || strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			continue
		}
		return w
	}
	return ""
}
