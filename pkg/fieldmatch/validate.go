package fieldmatch

import (
	"fmt"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// ValidateRecord aggregates completeness checks into rec.Validation.
// Export is gated on the outcome: any entry in Missing blocks export,
// warnings do not.
func ValidateRecord(rec *contracts.UnifiedMetadataRecord) {
	var vs contracts.ValidationState

	vs.Require(rec.Expediente.NumeroExpediente != "", "NumeroExpediente")
	vs.Require(rec.Expediente.NumeroOficio != "", "NumeroOficio")
	vs.Require(rec.Expediente.Subdivision != contracts.SubdivisionUnknown, "Subdivision")
	vs.Require(!rec.Expediente.FechaRecepcion.IsZero(), "FechaRecepcion")

	for i, action := range rec.ComplianceActions {
		switch action.ActionType {
		case contracts.ActionBlock, contracts.ActionUnblock, contracts.ActionTransfer:
			hasAccount := action.AccountNumber != "" ||
				(action.Cuenta != nil && action.Cuenta.Numero != "")
			vs.Require(hasAccount, fmt.Sprintf("ComplianceActions[%d].AccountNumber", i))
		}
	}

	vs.WarnIf(rec.Expediente.FechaEstimadaConclusion.IsZero(), "FechaEstimadaConclusion")
	for _, p := range rec.Personas {
		if !p.Validation.IsValid() {
			vs.Warn("Persona:" + personaLabel(p))
		}
	}
	for _, name := range rec.AdditionalFieldConflicts {
		vs.Warn("AdditionalFieldConflict:" + name)
	}

	rec.Validation = vs
}

func personaLabel(p contracts.Persona) string {
	if p.ParteID != "" {
		return p.ParteID
	}
	if p.Rfc != "" {
		return p.Rfc
	}
	return strings.TrimSpace(p.Nombre + " " + p.Paterno)
}
