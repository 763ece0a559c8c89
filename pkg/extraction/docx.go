package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// DOCXExtractor reads the main document part of a Word archive and scans
// its text for labeled fields. Only word/document.xml is consulted; headers
// and footers repeat the letterhead, not the oficio body.
type DOCXExtractor struct{}

// Extract unpacks data and walks the document part.
func (DOCXExtractor) Extract(_ context.Context, data []byte) (contracts.ExtractedMetadata, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return contracts.ExtractedMetadata{}, fmt.Errorf("open docx archive: %w", err)
	}

	var part []byte
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return contracts.ExtractedMetadata{}, fmt.Errorf("open document part: %w", err)
		}
		part, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return contracts.ExtractedMetadata{}, fmt.Errorf("read document part: %w", err)
		}
		break
	}
	if part == nil {
		return contracts.ExtractedMetadata{}, fmt.Errorf("word/document.xml not found")
	}

	text, err := docxText(part)
	if err != nil {
		return contracts.ExtractedMetadata{}, err
	}

	fields := scanTextFields(text)
	confidences := make(map[string]float64, len(fields))
	for name := range fields {
		confidences[name] = confidenceHeuristic
	}
	return contracts.ExtractedMetadata{
		RawText:     text,
		Fields:      fields,
		Confidences: confidences,
		Source:      contracts.SourceDOCX,
	}, nil
}

// docxText flattens WordprocessingML into plain text: w:t runs concatenate,
// w:p and w:br break lines, w:tab becomes a space.
func docxText(part []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(part))
	var (
		out    strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document part: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				out.WriteByte('\n')
			case "tab":
				out.WriteByte(' ')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		}
	}
	return out.String(), nil
}
