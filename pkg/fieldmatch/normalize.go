package fieldmatch

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Rule normalizes one field observation before comparison.
type Rule func(string) string

// Basic applies NFC normalization, trims, and collapses inner whitespace.
// Accents survive; OCR output frequently decomposes them.
func Basic(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Upper is Basic plus uppercasing, for case-insensitive identifiers such
// as expediente and oficio numbers.
func Upper(s string) string {
	return strings.ToUpper(Basic(s))
}

// RFC additionally strips hyphens and inner spaces: registry keys arrive
// both hyphenated and plain.
func RFC(s string) string {
	s = Upper(s)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// Fecha canonicalizes common date spellings to 2006-01-02. Unparseable
// values fall back to Basic so they still group textually.
func Fecha(s string) string {
	b := Basic(s)
	if t, ok := ParseFecha(b); ok {
		return t.Format("2006-01-02")
	}
	return b
}

var fechaLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
}

// ParseFecha parses the date spellings the portals emit: ISO dates,
// day-first dd/mm/yyyy and dd-mm-yyyy, and full RFC 3339 stamps.
func ParseFecha(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range fechaLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ruleForName picks a normalization rule for fields without an explicit
// definition.
func ruleForName(name string) Rule {
	switch {
	case name == "Rfc":
		return RFC
	case strings.HasPrefix(name, "Fecha"):
		return Fecha
	default:
		return Basic
	}
}
