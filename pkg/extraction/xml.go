package extraction

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// XMLExtractor reads structured regulator XML. Every leaf element with text
// becomes a field; element names are matched accent- and case-insensitively
// against the shared label table, so <NumeroOficio>, <numero_oficio> and
// <NUMERO-OFICIO> all land on the same canonical field. Unrecognized
// elements keep their original spelling and flow into the dynamic field bag.
type XMLExtractor struct{}

// Extract parses data and collects leaf-element text.
func (XMLExtractor) Extract(_ context.Context, data []byte) (contracts.ExtractedMetadata, error) {
	meta := contracts.ExtractedMetadata{
		Fields:      make(map[string]string),
		Confidences: make(map[string]float64),
		Source:      contracts.SourceXML,
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	var (
		raw     strings.Builder
		element string
		text    strings.Builder
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return contracts.ExtractedMetadata{}, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			element = t.Name.Local
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			value := strings.TrimSpace(text.String())
			if element == t.Name.Local && value != "" {
				name := canonicalElementName(element)
				if _, seen := meta.Fields[name]; !seen {
					meta.Fields[name] = value
					meta.Confidences[name] = confidenceStructured
				}
				raw.WriteString(value)
				raw.WriteByte('\n')
			}
			element = ""
			text.Reset()
		}
	}

	meta.RawText = raw.String()
	return meta, nil
}

// elementAliases covers squeezed element spellings the line-oriented label
// table cannot: camelCase and snake_case collapse to the same key once
// folded and stripped of spaces.
var elementAliases = map[string]string{
	"numerooficio":     "NumeroOficio",
	"numeroexpediente": "Expediente",
	"accionsolicitada": "AccionSolicitada",
	"areadescripcion":  "AreaDescripcion",
	"fundamentolegal":  "FundamentoLegal",
	"medioenvio":       "MedioEnvio",
	"fechapublicacion": "FechaPublicacion",
	"diasplazo":        "DiasPlazo",
}

func canonicalElementName(local string) string {
	folded := foldLabel(strings.NewReplacer("_", " ", "-", " ").Replace(local))
	if canonical, ok := fieldLabels[folded]; ok {
		return canonical
	}
	if canonical, ok := elementAliases[strings.ReplaceAll(folded, " ", "")]; ok {
		return canonical
	}
	return local
}
