package contracts

// ValidationState accumulates export-blocking omissions and advisory
// warnings. A record is exportable iff Missing is empty.
type ValidationState struct {
	Missing  []string `json:"missing,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Require records name under Missing when cond is false.
func (v *ValidationState) Require(cond bool, name string) {
	if !cond {
		v.Missing = append(v.Missing, name)
	}
}

// Warn records an advisory finding.
func (v *ValidationState) Warn(name string) {
	v.Warnings = append(v.Warnings, name)
}

// WarnIf records an advisory finding when cond is true.
func (v *ValidationState) WarnIf(cond bool, name string) {
	if cond {
		v.Warn(name)
	}
}

// IsValid reports whether every required field was present.
func (v *ValidationState) IsValid() bool {
	return len(v.Missing) == 0
}

// UnifiedMetadataRecord is the assembled artifact handed to the export
// stage: one expediente with its reconciled fields, resolved parties and
// derived compliance actions.
//
//nolint:govet // fieldalignment: grouped by pipeline stage of origin
type UnifiedMetadataRecord struct {
	Expediente      Expediente           `json:"expediente"`
	ExtractedFields ExtractedFields      `json:"extracted_fields"`
	Classification  ClassificationResult `json:"classification"`
	MatchedFields   MatchedFields        `json:"matched_fields"`

	AdditionalFields         map[string]string `json:"additional_fields,omitempty"`
	AdditionalFieldConflicts []string          `json:"additional_field_conflicts,omitempty"`

	Personas          []Persona          `json:"personas,omitempty"`
	ComplianceActions []ComplianceAction `json:"compliance_actions,omitempty"`

	RequirementSummary string          `json:"requirement_summary,omitempty"`
	Validation         ValidationState `json:"validation"`
}
