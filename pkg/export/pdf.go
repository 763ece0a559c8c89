package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/crypto"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// signatureMarker starts the detached-in-file signature trailer appended
// after %%EOF. PDF readers ignore trailing comment lines, so the signed
// document stays openable.
const signatureMarker = "%%Signature: ed25519:"

const (
	linesPerPage = 48
	summaryWrap  = 92
)

// ExportSignedPDFWithSummarization validates record, attaches a
// requirement summary derived from the original oficio when one is
// provided, renders the response PDF and signs it. The Ed25519 signature
// covers every rendered byte and rides in a trailer comment after %%EOF.
//
// A summarizer failure is advisory, the PDF is exported without a summary.
// Summarizer cancellation cancels the export.
func (s *Stage) ExportSignedPDFWithSummarization(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord, originalPDF []byte, w io.Writer) outcome.Outcome[Receipt] {
	if out, done := outcome.Guard[Receipt](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[Receipt] {
		if err := s.requireExportable(ctx, fileID, KindSignedPDF, &record); err != nil {
			return outcome.Failure[Receipt](err)
		}
		if s.signer == nil {
			return s.failExport(ctx, fileID, KindSignedPDF, fmt.Errorf("no signer configured"))
		}

		if len(originalPDF) > 0 && s.summarizer != nil {
			summary, err := s.summarizer.Summarize(ctx, originalPDF, record)
			switch {
			case err != nil:
				if out := outcome.FromErr[Receipt](err); out.IsCancelled() {
					return out
				}
				s.log.Warn("requirement summary failed, exporting without it",
					"file_id", fileID,
					"error", err)
			case summary != "":
				record.RequirementSummary = summary
			}
		}
		hasSummary := record.RequirementSummary != ""

		body := renderResponsePDF(record, s.clock().UTC())
		sig, err := s.signer.Sign(body)
		if err != nil {
			return s.failExport(ctx, fileID, KindSignedPDF, fmt.Errorf("sign pdf: %w", err))
		}
		keyID := SignatureKeyID(s.signer.PublicKey())

		aw := newArtifactWriter(w)
		if _, err := aw.Write(body); err != nil {
			return s.failExport(ctx, fileID, KindSignedPDF, fmt.Errorf("write pdf: %w", err))
		}
		if _, err := fmt.Fprintf(aw, "%s%s:%s\n", signatureMarker, keyID, sig); err != nil {
			return s.failExport(ctx, fileID, KindSignedPDF, fmt.Errorf("write signature trailer: %w", err))
		}

		rec := Receipt{
			ArtifactID:     uuid.New().String(),
			FileID:         fileID,
			Kind:           KindSignedPDF,
			SHA256:         aw.sum(),
			SizeBytes:      aw.n,
			Signature:      sig,
			SignatureKeyID: keyID,
			HasSummary:     hasSummary,
			CreatedAt:      s.clock().UTC(),
		}
		s.finish(ctx, rec, map[string]any{
			"has_summary":   hasSummary,
			"signature_key": keyID,
			"numero_oficio": record.Expediente.NumeroOficio,
		})
		return outcome.Success(rec)
	})
}

// SignatureKeyID derives the short key identifier embedded in signature
// trailers from a hex-encoded public key.
func SignatureKeyID(pubKeyHex string) string {
	return crypto.HashSHA256([]byte(pubKeyHex))[:12]
}

// ParseSignature splits signed PDF bytes into the signed body and the
// trailer fields. The body includes the %%EOF line.
func ParseSignature(data []byte) (body []byte, keyID, sigHex string, err error) {
	idx := bytes.LastIndex(data, []byte(signatureMarker))
	if idx < 0 {
		return nil, "", "", fmt.Errorf("no signature trailer")
	}
	line := bytes.TrimRight(data[idx+len(signatureMarker):], "\r\n")
	parts := strings.SplitN(string(line), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, "", "", fmt.Errorf("malformed signature trailer")
	}
	return data[:idx], parts[0], parts[1], nil
}

// VerifySignedPDF checks the embedded signature against pubKeyHex. The
// signature covers every byte before the trailer line.
func VerifySignedPDF(data []byte, pubKeyHex string) (bool, error) {
	body, _, sigHex, err := ParseSignature(data)
	if err != nil {
		return false, err
	}
	return crypto.Verify(pubKeyHex, sigHex, body)
}

func renderResponsePDF(record contracts.UnifiedMetadataRecord, now time.Time) []byte {
	return renderPDF(responseLines(record, now))
}

// responseLines lays out the response document as plain text lines, one
// section per record facet.
func responseLines(record contracts.UnifiedMetadataRecord, now time.Time) []string {
	exp := record.Expediente
	lines := []string{
		"RESPUESTA DE OFICIO",
		"",
		"Expediente: " + exp.NumeroExpediente,
		"Oficio: " + exp.NumeroOficio,
		"Subdivision: " + string(exp.Subdivision),
	}
	if exp.AreaDescripcion != "" {
		lines = append(lines, "Area: "+exp.AreaDescripcion)
	}
	lines = append(lines, "Fecha de recepcion: "+exp.FechaRecepcion.Format(dateLayout))
	if !exp.FechaEstimadaConclusion.IsZero() {
		lines = append(lines, "Fecha estimada de conclusion: "+exp.FechaEstimadaConclusion.Format(dateLayout))
	}
	if exp.FundamentoLegal != "" {
		lines = append(lines, "Fundamento legal: "+exp.FundamentoLegal)
	}
	lines = append(lines, fmt.Sprintf("Clasificacion: %s (confianza %d)",
		classificationLabel(record.Classification), record.Classification.Confidence))

	if len(record.Personas) > 0 {
		lines = append(lines, "", "Personas:")
		for _, p := range record.Personas {
			lines = append(lines, " - "+personaLine(p))
		}
	}
	if len(record.ComplianceActions) > 0 {
		lines = append(lines, "", "Acciones:")
		for _, a := range record.ComplianceActions {
			lines = append(lines, " - "+actionLine(a))
		}
	}
	if record.RequirementSummary != "" {
		lines = append(lines, "", "Resumen del requerimiento:")
		lines = append(lines, wrapText(record.RequirementSummary, summaryWrap)...)
	}
	if len(record.Validation.Warnings) > 0 {
		lines = append(lines, "", "Observaciones:")
		for _, warning := range record.Validation.Warnings {
			lines = append(lines, " - "+warning)
		}
	}
	return append(lines, "", "Generado: "+now.Format(time.RFC3339))
}

func classificationLabel(c contracts.ClassificationResult) string {
	if c.Level2 != "" {
		return string(c.Level1) + " / " + c.Level2
	}
	return string(c.Level1)
}

func personaLine(p contracts.Persona) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Nombre, p.Paterno, p.Materno} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	line := strings.Join(parts, " ")
	if p.Rfc != "" {
		line += " (RFC " + p.Rfc + ")"
	}
	if p.Caracter != "" {
		line += ", caracter " + p.Caracter
	}
	return line
}

func actionLine(a contracts.ComplianceAction) string {
	line := string(a.ActionType)
	if acct := actionAccount(a); acct != "" {
		line += ", cuenta " + acct
	}
	if a.Cuenta != nil && a.Cuenta.Clabe != "" {
		line += ", CLABE " + a.Cuenta.Clabe
	}
	if a.Amount != "" {
		line += ", importe " + a.Amount
	}
	return fmt.Sprintf("%s (confianza %d)", line, a.Confidence)
}

func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

// pdfWriter accumulates a PDF body while tracking object offsets for the
// cross-reference table.
type pdfWriter struct {
	buf     bytes.Buffer
	offsets []int
}

func (pw *pdfWriter) object(id int, body string) {
	for len(pw.offsets) < id {
		pw.offsets = append(pw.offsets, 0)
	}
	pw.offsets[id-1] = pw.buf.Len()
	fmt.Fprintf(&pw.buf, "%d 0 obj\n%s\nendobj\n", id, body)
}

// renderPDF emits a single-font PDF 1.4 document. Object 1 is the
// catalog, 2 the page tree, 3 the shared Helvetica font; each page takes
// two objects, page node then content stream.
func renderPDF(lines []string) []byte {
	pages := paginate(lines, linesPerPage)

	pw := &pdfWriter{}
	pw.buf.WriteString("%PDF-1.4\n")

	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	pw.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	pw.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pages)))
	pw.object(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, page := range pages {
		pageID := 4 + 2*i
		pw.object(pageID, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pageID+1))
		stream := contentStream(page)
		pw.object(pageID+1, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
	}

	xrefAt := pw.buf.Len()
	fmt.Fprintf(&pw.buf, "xref\n0 %d\n", len(pw.offsets)+1)
	pw.buf.WriteString("0000000000 65535 f \n")
	for _, off := range pw.offsets {
		fmt.Fprintf(&pw.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&pw.buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(pw.offsets)+1, xrefAt)
	return pw.buf.Bytes()
}

func paginate(lines []string, per int) [][]string {
	if len(lines) == 0 {
		return [][]string{{}}
	}
	var pages [][]string
	for len(lines) > per {
		pages = append(pages, lines[:per])
		lines = lines[per:]
	}
	return append(pages, lines)
}

func contentStream(lines []string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 11 Tf\n14 TL\n54 742 Td\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", pdfEscape(line))
	}
	b.WriteString("ET\n")
	return b.String()
}

// pdfEscape encodes a line for a PDF literal string. Latin-1 runes become
// octal escapes, anything beyond WinAnsi degrades to '?'.
func pdfEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '(' || r == ')':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, "\\%03o", r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}
