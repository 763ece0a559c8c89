package browser

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// matchesPatterns reports whether any pattern matches any candidate
// string. Patterns with glob metacharacters match file names
// (`*.xml`), plain patterns match as substrings so link text like
// "Oficio 421/2025" can be targeted. Matching is case-insensitive.
func matchesPatterns(patterns []string, candidates ...string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if matchPattern(p, strings.ToLower(c)) {
				return true
			}
		}
	}
	return false
}

func matchPattern(pattern, name string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}
	return strings.Contains(name, pattern)
}

// fileNameFromURL extracts the last path segment, with the query and
// fragment stripped. Returns "" when the URL has no file-like segment.
func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// dispositionFileName pulls the filename parameter out of a
// Content-Disposition header value.
func dispositionFileName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func formatForName(name string) contracts.FileFormat {
	switch strings.ToLower(path.Ext(name)) {
	case ".xml":
		return contracts.FormatXML
	case ".docx":
		return contracts.FormatDOCX
	case ".pdf":
		return contracts.FormatPDF
	case ".zip":
		return contracts.FormatZIP
	default:
		return contracts.FormatUnknown
	}
}
