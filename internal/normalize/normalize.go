// Package normalize turns free-text player names and raw team codes into
// canonical comparison keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks left behind by NFD decomposition, so
// "Félix" and "Felix" compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Name converts a free-text player name into a canonical comparison key:
// diacritics stripped, lowercased, periods removed (so "J.T." becomes "jt"),
// all other non-letter/non-space runes dropped, whitespace collapsed.
// Deterministic and total; empty input yields empty output.
func Name(raw string) string {
	s, _, err := transform.String(stripMarks, raw)
	if err != nil {
		// Malformed UTF-8 only; fall back to the raw bytes.
		s = raw
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// teamAliases maps known alternate team codes to their canonical form.
// The table is closed; anything not listed passes through uppercased.
var teamAliases = map[string]string{
	"ARZ": "ARI",
	"AZ":  "ARI",
	"CHW": "CWS",
	"CHC": "CHC",
	"KCR": "KC",
	"SDP": "SD",
	"SFG": "SF",
	"TBR": "TB",
	"WAS": "WSH",
	"WSN": "WSH",
	"NYN": "NYM",
	"NYA": "NYY",
}

// Team canonicalizes a raw team code. Unknown codes are uppercased and passed
// through unchanged, never rejected.
func Team(code string) string {
	up := strings.ToUpper(strings.TrimSpace(code))
	if canonical, ok := teamAliases[up]; ok {
		return canonical
	}
	return up
}
