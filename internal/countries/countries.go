// Package countries resolves country names to ISO 3166-1 alpha-3 codes.
package countries

import (
	"strings"

	"github.com/biter777/countries"
)

// specialCases maps source spellings that the generic lookup gets wrong or
// misses entirely. Keys are compared case-sensitively, matching how the
// upstream datasets print them.
var specialCases = map[string]string{
	"Bolivia":          "BOL",
	"Brunei":           "BRN",
	"Congo, Dem. Rep.": "COD",
	"Congo, Rep.":      "COG",
	"Czechia":          "CZE",
	"Egypt":            "EGY",
	"Hong Kong":        "HKG",
	"Iran":             "IRN",
	"Ivory Coast":      "CIV",
	"Korea, North":     "PRK",
	"Korea, South":     "KOR",
	"Laos":             "LAO",
	"Moldova":          "MDA",
	"North Macedonia":  "MKD",
	"Russia":           "RUS",
	"Syria":            "SYR",
	"Taiwan":           "TWN",
	"Tanzania":         "TZA",
	"Turkey":           "TUR",
	"Venezuela":        "VEN",
	"Vietnam":          "VNM",
}

// Resolve maps a country name or code to its alpha-3 code. Inputs that are
// already 3-letter codes pass through uppercased. Returns false when the
// name cannot be resolved.
func Resolve(value string) (string, bool) {
	name := strings.TrimSpace(value)
	if name == "" {
		return "", false
	}

	if len(name) == 3 && isAlpha(name) {
		return strings.ToUpper(name), true
	}

	if code, ok := specialCases[name]; ok {
		return code, true
	}

	normalized := strings.ReplaceAll(name, "&", "and")
	if c := countries.ByName(normalized); c != countries.Unknown {
		return c.Alpha3(), true
	}
	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
