package extraction

import (
	"context"
	"sort"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Extractor turns document bytes of one format into format-neutral
// metadata.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (contracts.ExtractedMetadata, error)
}

// Per-field confidence when an extractor reports none.
const (
	confidenceStructured = 1.0
	confidenceHeuristic  = 0.8
	confidenceOCR        = 0.6
)

func originFor(source contracts.SourceType) contracts.FieldOrigin {
	switch source {
	case contracts.SourceXML:
		return contracts.OriginStructured
	case contracts.SourcePDF:
		return contracts.OriginOCR
	default:
		return contracts.OriginHeuristic
	}
}

func defaultConfidence(origin contracts.FieldOrigin) float64 {
	switch origin {
	case contracts.OriginStructured:
		return confidenceStructured
	case contracts.OriginOCR:
		return confidenceOCR
	default:
		return confidenceHeuristic
	}
}

// Observations converts one extractor's output into the per-field
// observation list cross-source matching consumes. Output is sorted by field
// name so downstream tie-breaking is deterministic.
func Observations(meta contracts.ExtractedMetadata) []contracts.FieldValue {
	origin := originFor(meta.Source)
	names := make([]string, 0, len(meta.Fields))
	for name := range meta.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]contracts.FieldValue, 0, len(names))
	for _, name := range names {
		confidence, ok := meta.Confidences[name]
		if !ok {
			confidence = defaultConfidence(origin)
		}
		out = append(out, contracts.FieldValue{
			Name:       name,
			Value:      meta.Fields[name],
			Confidence: confidence,
			Source:     meta.Source,
			Origin:     origin,
		})
	}
	return out
}

// liftFields separates the semantic tuple from the dynamic field bag.
func liftFields(meta contracts.ExtractedMetadata) contracts.ExtractedFields {
	out := contracts.ExtractedFields{AdditionalFields: make(map[string]string)}
	for name, value := range meta.Fields {
		switch name {
		case "Expediente":
			out.Expediente = value
		case "Causa":
			out.Causa = value
		case "AccionSolicitada":
			out.AccionSolicitada = value
		default:
			out.AdditionalFields[name] = value
		}
	}
	return out
}
