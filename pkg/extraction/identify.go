package extraction

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Identifier decides the on-disk format of a document. Content sniffing wins
// over the name hint; the hint only decides when the bytes are inconclusive.
type Identifier interface {
	Identify(data []byte, nameHint string) contracts.FileFormat
}

// MagicIdentifier is the default content-based Identifier.
type MagicIdentifier struct{}

// Identify sniffs the leading bytes and falls back to the file extension.
func (MagicIdentifier) Identify(data []byte, nameHint string) contracts.FileFormat {
	if format := sniffFormat(data); format != contracts.FormatUnknown {
		return format
	}
	return formatFromName(nameHint)
}

func sniffFormat(data []byte) contracts.FileFormat {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return contracts.FormatPDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if zipHasEntry(data, "word/document.xml") {
			return contracts.FormatDOCX
		}
		return contracts.FormatZIP
	}

	// XML declarations are optional; a leading element is enough.
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return contracts.FormatXML
	}
	return contracts.FormatUnknown
}

func zipHasEntry(data []byte, name string) bool {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range r.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

func formatFromName(name string) contracts.FileFormat {
	switch strings.ToLower(filepath.Ext(name)) {
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
