package extraction

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// A text layer shorter than this is treated as absent (stamps, page
// numbers) and the document goes to OCR.
const minTextLayerChars = 40

// PDFExtractor prefers the embedded text layer and falls back to the OCR
// recognizer for scanned documents.
type PDFExtractor struct {
	recognizer Recognizer
	cfg        config.ProcessingConfig
	log        *slog.Logger
}

// NewPDFExtractor wires the OCR fallback. recognizer may be nil; text-layer
// documents still extract, scanned ones fail.
func NewPDFExtractor(recognizer Recognizer, cfg config.ProcessingConfig, log *slog.Logger) *PDFExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &PDFExtractor{
		recognizer: recognizer,
		cfg:        cfg,
		log:        log.With("component", "pdf"),
	}
}

// Extract scrapes the text layer or runs OCR, then scans for labeled
// fields.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (contracts.ExtractedMetadata, error) {
	text := pdfTextLayer(data)
	confidence := 0.95

	if len(strings.TrimSpace(text)) < minTextLayerChars {
		if e.recognizer == nil {
			return contracts.ExtractedMetadata{}, fmt.Errorf("no text layer and no ocr recognizer configured")
		}
		recognized, err := e.recognizer.Recognize(ctx, data)
		if err != nil {
			return contracts.ExtractedMetadata{}, fmt.Errorf("ocr: %w", err)
		}
		text = recognized.Content
		confidence = recognized.MeanConfidence
		if confidence < e.cfg.ConfidenceThreshold {
			e.log.Warn("ocr confidence below threshold",
				"confidence", confidence,
				"threshold", e.cfg.ConfidenceThreshold)
		}
	}

	fields := scanTextFields(text)
	confidences := make(map[string]float64, len(fields))
	for name := range fields {
		confidences[name] = confidence
	}
	return contracts.ExtractedMetadata{
		RawText:     text,
		Fields:      fields,
		Confidences: confidences,
		Source:      contracts.SourcePDF,
	}, nil
}

// pdfTextLayer scrapes literal strings from BT..ET text blocks, checking
// both raw content and deflated streams. Generators that emit one string
// per visual line keep "Label: value" pairs intact; kerned output degrades
// to loose text the label scanner skips.
func pdfTextLayer(data []byte) string {
	var lines []string
	for _, content := range pdfContents(data) {
		lines = append(lines, textBlocks(content)...)
	}
	return strings.Join(lines, "\n")
}

// pdfContents returns the raw document plus every stream that inflates.
func pdfContents(data []byte) [][]byte {
	contents := [][]byte{data}
	rest := data
	for {
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			break
		}
		body := rest[start+len("stream"):]
		body = bytes.TrimPrefix(body, []byte("\r"))
		body = bytes.TrimPrefix(body, []byte("\n"))
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		if inflated, ok := inflate(body[:end]); ok {
			contents = append(contents, inflated)
		}
		rest = body[end+len("endstream"):]
	}
	return contents
}

func inflate(stream []byte) ([]byte, bool) {
	if len(stream) == 0 || stream[0] != 0x78 {
		return nil, false
	}
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, false
	}
	defer func() { _ = r.Close() }()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	return out, true
}

func textBlocks(content []byte) []string {
	var lines []string
	rest := content
	for {
		bt := bytes.Index(rest, []byte("BT"))
		if bt < 0 {
			break
		}
		et := bytes.Index(rest[bt:], []byte("ET"))
		if et < 0 {
			break
		}
		lines = append(lines, literalStrings(rest[bt:bt+et])...)
		rest = rest[bt+et+len("ET"):]
	}
	return lines
}

// literalStrings collects PDF literal strings, one line each. Strings
// inside a TJ array join into a single line since they render as one.
func literalStrings(block []byte) []string {
	var (
		lines   []string
		group   strings.Builder
		inGroup bool
	)
	flush := func(s string) {
		if inGroup {
			group.WriteString(s)
			return
		}
		if s != "" {
			lines = append(lines, s)
		}
	}
	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '[':
			inGroup = true
			group.Reset()
		case ']':
			if inGroup && group.Len() > 0 {
				lines = append(lines, group.String())
			}
			inGroup = false
		case '(':
			s, next := literalString(block, i)
			flush(s)
			i = next
		}
	}
	return lines
}

// literalString decodes the string starting at the '(' at block[start] and
// returns the index of its closing parenthesis. Balanced unescaped parens
// nest per the PDF string syntax.
func literalString(block []byte, start int) (string, int) {
	var out strings.Builder
	depth := 1
	i := start + 1
	for ; i < len(block) && depth > 0; i++ {
		c := block[i]
		switch c {
		case '\\':
			if i+1 >= len(block) {
				break
			}
			i++
			switch block[i] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case '(', ')', '\\':
				out.WriteByte(block[i])
			default:
				if v, width, ok := octalEscape(block, i); ok {
					out.WriteByte(v)
					i += width - 1
				} else {
					out.WriteByte(block[i])
				}
			}
		case '(':
			depth++
			out.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				out.WriteByte(c)
			}
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), i - 1
}

func octalEscape(block []byte, start int) (byte, int, bool) {
	var (
		v     int
		width int
	)
	for width < 3 && start+width < len(block) {
		c := block[start+width]
		if c < '0' || c > '7' {
			break
		}
		v = v*8 + int(c-'0')
		width++
	}
	if width == 0 {
		return 0, 0, false
	}
	return byte(v), width, true
}
