package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Summarizer condenses the original oficio and its processed record into
// the requirement summary attached to the signed PDF. Implementations may
// call an external model; the default works from the record alone.
type Summarizer interface {
	Summarize(ctx context.Context, original []byte, record contracts.UnifiedMetadataRecord) (string, error)
}

// RequirementSummarizer is the default Summarizer: a deterministic
// digest of what the oficio requires, built from the record's expediente,
// actions and parties.
type RequirementSummarizer struct{}

var actionPhrases = map[contracts.ComplianceActionType]string{
	contracts.ActionBlock:       "aseguramiento de la cuenta",
	contracts.ActionUnblock:     "levantamiento del aseguramiento de la cuenta",
	contracts.ActionTransfer:    "transferencia desde la cuenta",
	contracts.ActionDocument:    "entrega de documentacion",
	contracts.ActionInformation: "entrega de informacion",
	contracts.ActionUnknownType: "accion por determinar",
}

// Summarize builds the requirement summary. The original document only
// contributes its page count; the semantic content comes from the record.
func (RequirementSummarizer) Summarize(_ context.Context, original []byte, record contracts.UnifiedMetadataRecord) (string, error) {
	var b strings.Builder
	exp := record.Expediente

	fmt.Fprintf(&b, "Oficio %s, expediente %s", exp.NumeroOficio, exp.NumeroExpediente)
	if exp.AreaDescripcion != "" {
		fmt.Fprintf(&b, " (%s)", exp.AreaDescripcion)
	}
	fmt.Fprintf(&b, ", recibido el %s.", exp.FechaRecepcion.Format(dateLayout))

	if len(record.ComplianceActions) > 0 {
		b.WriteString(" Requiere:")
		for i, a := range record.ComplianceActions {
			if i > 0 {
				b.WriteString(";")
			}
			phrase, ok := actionPhrases[a.ActionType]
			if !ok {
				phrase = "accion " + strings.ToLower(string(a.ActionType))
			}
			fmt.Fprintf(&b, " %s", phrase)
			if acct := actionAccount(a); acct != "" {
				fmt.Fprintf(&b, " %s", acct)
			}
			if a.Amount != "" {
				fmt.Fprintf(&b, " por %s", a.Amount)
			}
		}
		b.WriteString(".")
	}

	if n := len(record.Personas); n == 1 {
		b.WriteString(" Involucra a 1 persona.")
	} else if n > 1 {
		fmt.Fprintf(&b, " Involucra a %d personas.", n)
	}

	if !exp.FechaEstimadaConclusion.IsZero() {
		fmt.Fprintf(&b, " Plazo estimado de conclusion: %s.", exp.FechaEstimadaConclusion.Format(dateLayout))
	}
	if pages := pdfPageCount(original); pages > 0 {
		fmt.Fprintf(&b, " Documento original de %d pagina(s).", pages)
	}
	return b.String(), nil
}

func actionAccount(a contracts.ComplianceAction) string {
	if a.AccountNumber != "" {
		return a.AccountNumber
	}
	if a.Cuenta != nil {
		return a.Cuenta.Numero
	}
	return ""
}

// pdfPageCount counts page objects in a PDF body. Zero when the bytes are
// not a PDF or carry no recognizable page markers. Every "/Type /Pages"
// node also matches the page pattern, so the container count is backed out.
func pdfPageCount(data []byte) int {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0
	}
	spaced := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	packed := bytes.Count(data, []byte("/Type/Page")) - bytes.Count(data, []byte("/Type/Pages"))
	return spaced + packed
}
