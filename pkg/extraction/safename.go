package extraction

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Namer derives organized filenames.
type Namer interface {
	SafeName(original string, cls contracts.ClassificationResult, fields contracts.ExtractedFields) string
}

const (
	defaultMaxNameLength = 120
	expedienteTokenLen   = 12
)

// SafeNamer composes classification, a short expediente token and the
// original name into a filesystem-safe filename:
// Level1[_Level2][_TOKEN][_original].ext
type SafeNamer struct {
	MaxLength int // composed length clamp, extension included; 0 means default
}

// SafeName builds the organized filename for original.
func (n SafeNamer) SafeName(original string, cls contracts.ClassificationResult, fields contracts.ExtractedFields) string {
	maxLen := n.MaxLength
	if maxLen <= 0 {
		maxLen = defaultMaxNameLength
	}

	ext := strings.ToLower(filepath.Ext(original))
	base := sanitizeName(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))

	parts := []string{string(cls.Level1)}
	if cls.Level2 != "" {
		parts = append(parts, cls.Level2)
	}
	if token := expedienteToken(fields.Expediente); token != "" {
		parts = append(parts, token)
	}
	if base != "" {
		parts = append(parts, base)
	}

	stem := strings.Join(parts, "_")
	limit := maxLen - len(ext)
	if limit < 1 {
		limit = 1
	}
	if runes := []rune(stem); len(runes) > limit {
		stem = strings.Trim(string(runes[:limit]), "_")
	}
	return stem + ext
}

// sanitizeName strips characters that are unsafe in filenames, collapsing
// runs into a single underscore.
func sanitizeName(s string) string {
	var (
		b    strings.Builder
		gap  bool
		seen bool
	)
	for _, r := range s {
		if unsafeNameRune(r) {
			gap = seen
			continue
		}
		if gap {
			b.WriteByte('_')
			gap = false
		}
		b.WriteRune(r)
		seen = true
	}
	return strings.Trim(b.String(), "._ ")
}

func unsafeNameRune(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*', ' ':
		return true
	}
	return r < 0x20
}

// expedienteToken compacts an expediente number into a short uppercase
// alphanumeric run, enough to keep sibling files apart.
func expedienteToken(expediente string) string {
	var b strings.Builder
	for _, r := range expediente {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
		if b.Len() >= expedienteTokenLen {
			break
		}
	}
	return b.String()
}
