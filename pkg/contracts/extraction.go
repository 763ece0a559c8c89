package contracts

// SourceType names the extractor family that produced a field observation.
type SourceType string

// Field observation sources.
const (
	SourceXML     SourceType = "XML"
	SourcePDF     SourceType = "PDF"
	SourceDOCX    SourceType = "DOCX"
	SourceUnknown SourceType = "UNKNOWN"
)

// FieldOrigin distinguishes how a field value was obtained from its source.
type FieldOrigin string

// Field origins.
const (
	OriginStructured FieldOrigin = "STRUCTURED" // parsed from markup
	OriginOCR        FieldOrigin = "OCR"        // recognized from page images
	OriginHeuristic  FieldOrigin = "HEURISTIC"  // regex/positional extraction
	OriginDerived    FieldOrigin = "DERIVED"    // computed from other fields
)

// ExtractedMetadata is the format-neutral output of one extractor run over a
// single source document.
type ExtractedMetadata struct {
	RawText     string             `json:"raw_text,omitempty"`
	Fields      map[string]string  `json:"fields"`
	Confidences map[string]float64 `json:"confidences,omitempty"` // per field, 0..1
	Source      SourceType         `json:"source"`
}

// ClassificationLabel is one of the regulated level-1 categories.
type ClassificationLabel string

// The fixed label set. Ties between equal scores break in this order.
const (
	LabelAseguramiento       ClassificationLabel = "Aseguramiento"
	LabelDesembargo          ClassificationLabel = "Desembargo"
	LabelDocumentacion       ClassificationLabel = "Documentacion"
	LabelInformacion         ClassificationLabel = "Informacion"
	LabelTransferencia       ClassificationLabel = "Transferencia"
	LabelOperacionesIlicitas ClassificationLabel = "OperacionesIlicitas"
)

// ClassificationLabels is the fixed label ordering used for tie-breaking and
// for emitting score vectors.
var ClassificationLabels = []ClassificationLabel{
	LabelAseguramiento,
	LabelDesembargo,
	LabelDocumentacion,
	LabelInformacion,
	LabelTransferencia,
	LabelOperacionesIlicitas,
}

// ClassificationResult carries the category decision for one document.
// Scores holds one non-negative entry per label in ClassificationLabels; the
// vector is not normalized and must be audited in full regardless of
// Confidence.
type ClassificationResult struct {
	Level1     ClassificationLabel             `json:"level1"`
	Level2     string                          `json:"level2,omitempty"`
	Confidence int                             `json:"confidence"` // 0..100
	Scores     map[ClassificationLabel]float64 `json:"scores"`
}

// ExtractedFields is the semantic tuple lifted out of ExtractedMetadata.
type ExtractedFields struct {
	Expediente       string            `json:"expediente,omitempty"`
	Causa            string            `json:"causa,omitempty"`
	AccionSolicitada string            `json:"accion_solicitada,omitempty"`
	AdditionalFields map[string]string `json:"additional_fields,omitempty"`
}

// FieldValue is one observation of a named field from one source.
type FieldValue struct {
	Name       string      `json:"name"`
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"` // 0..1
	Source     SourceType  `json:"source"`
	Origin     FieldOrigin `json:"origin"`
}

// FieldMatch is the reconciliation verdict for one field across sources.
type FieldMatch struct {
	MatchedValue        string       `json:"matched_value"`
	AgreementLevel      float64      `json:"agreement_level"` // 0..1
	HasConflict         bool         `json:"has_conflict"`
	ContributingSources []SourceType `json:"contributing_sources,omitempty"`
}

// MatchedFields aggregates per-field reconciliation over a document set.
type MatchedFields struct {
	Fields            map[string]FieldMatch `json:"fields"`
	MissingFields     []string              `json:"missing_fields,omitempty"`
	ConflictingFields []string              `json:"conflicting_fields,omitempty"`
	OverallAgreement  float64               `json:"overall_agreement"`
}
