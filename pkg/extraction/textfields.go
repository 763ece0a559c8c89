package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fieldLabels maps accent-folded lowercase document labels to canonical
// field names. Text extractors scan line by line for "Label: value" pairs;
// OCR output loses accents often enough that matching must not depend on
// them.
var fieldLabels = map[string]string{
	"expediente":           "Expediente",
	"numero de expediente": "Expediente",
	"no. de expediente":    "Expediente",
	"oficio":               "NumeroOficio",
	"numero de oficio":     "NumeroOficio",
	"no. de oficio":        "NumeroOficio",
	"causa":                "Causa",
	"accion solicitada":    "AccionSolicitada",
	"area":                 "AreaDescripcion",
	"autoridad":            "AreaDescripcion",
	"fundamento legal":     "FundamentoLegal",
	"medio de envio":       "MedioEnvio",
	"fecha de publicacion": "FechaPublicacion",
	"dias plazo":           "DiasPlazo",
	"plazo":                "DiasPlazo",
	"rfc":                  "Rfc",
}

// foldAccents strips combining marks: NFD decomposition, drop the marks,
// recompose.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText strips accents from s, leaving case and layout alone.
func foldText(s string) string {
	folded, _, err := transform.String(foldAccents, s)
	if err != nil {
		return s
	}
	return folded
}

func foldLabel(s string) string {
	folded := strings.ToLower(strings.TrimSpace(foldText(s)))
	return strings.Join(strings.Fields(folded), " ")
}

// scanTextFields collects labeled fields from free text. The first
// occurrence of a label wins; later repeats are usually page headers.
func scanTextFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		canonical, ok := fieldLabels[foldLabel(line[:idx])]
		if !ok {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		if value == "" {
			continue
		}
		if _, seen := fields[canonical]; !seen {
			fields[canonical] = value
		}
	}
	return fields
}
