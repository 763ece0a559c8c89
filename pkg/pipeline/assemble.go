package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/extraction"
	"github.com/meridian-compliance/oficios/pkg/fieldmatch"
)

// BuildRecord fuses one extraction result into the unified record the
// decision and export stages consume. Observations from the extractor run
// are reconciled field by field, the expediente is populated from the
// agreed values, dates the sources omit are derived, and the result is
// validated. The returned record carries the validation state export
// gates on.
func BuildRecord(matcher *fieldmatch.Matcher, cal fieldmatch.BusinessCalendar, file contracts.FileMetadata, res extraction.Result) contracts.UnifiedMetadataRecord {
	if matcher == nil {
		matcher = fieldmatch.NewMatcher()
	}
	m := matcher.Match(extraction.Observations(res.Metadata))

	rec := contracts.UnifiedMetadataRecord{
		ExtractedFields:          res.Fields,
		Classification:           res.Classification,
		MatchedFields:            m.Matched,
		AdditionalFields:         m.AdditionalFields,
		AdditionalFieldConflicts: m.AdditionalFieldConflicts,
	}

	exp := &rec.Expediente
	exp.NumeroExpediente = agreedValue(m.Matched, "Expediente")
	exp.NumeroOficio = agreedValue(m.Matched, "NumeroOficio")
	exp.AreaDescripcion = agreedValue(m.Matched, "AreaDescripcion")
	exp.FundamentoLegal = agreedValue(m.Matched, "FundamentoLegal")
	exp.MedioEnvio = agreedValue(m.Matched, "MedioEnvio")

	if t, ok := fieldmatch.ParseFecha(m.AdditionalFields["FechaRecepcion"]); ok {
		exp.FechaRecepcion = t
	}
	if t, ok := fieldmatch.ParseFecha(m.AdditionalFields["FechaEstimadaConclusion"]); ok {
		exp.FechaEstimadaConclusion = t
	}
	fieldmatch.DeriveDates(exp, m.AdditionalFields, cal)
	if exp.FechaRecepcion.IsZero() && !file.DownloadTimestamp.IsZero() {
		// The day the document landed in storage is the reception date of
		// last resort.
		exp.FechaRecepcion = dateOf(file.DownloadTimestamp)
	}

	exp.Subdivision = inferSubdivision(m.AdditionalFields["Subdivision"], exp.AreaDescripcion, exp.FundamentoLegal)
	rec.Personas = liftPersonas(m.AdditionalFields)

	fieldmatch.ValidateRecord(&rec)
	return rec
}

// agreedValue returns the reconciled value of one matched field, empty when
// the field was never observed.
func agreedValue(m contracts.MatchedFields, name string) string {
	return m.Fields[name].MatchedValue
}

// slaWindowDays reads the response window the document states, zero when
// absent or malformed so the tracker falls back to its default.
func slaWindowDays(additional map[string]string) int {
	days, err := strconv.Atoi(strings.TrimSpace(additional["DiasPlazo"]))
	if err != nil || days <= 0 {
		return 0
	}
	return days
}

// subdivisionCues maps issuing-authority vocabulary to the regulatory
// subdivision. Matching is case-insensitive over the explicit subdivision
// field, the area description and the legal basis, in that order of
// precedence.
var subdivisionCues = []struct {
	kind contracts.LegalSubdivisionKind
	cues []string
}{
	{contracts.SubdivisionJudicial, []string{"judicial", "juzgado", "tribunal", "penal", "ministerio publico", "ministerio público", "fiscalia", "fiscalía"}},
	{contracts.SubdivisionHacendaria, []string{"hacend", "fiscal", "tributar", "sat", "recaudaci"}},
	{contracts.SubdivisionAdministrativa, []string{"administra", "condusef", "cnbv", "uif"}},
}

func inferSubdivision(explicit string, contexts ...string) contracts.LegalSubdivisionKind {
	switch strings.ToUpper(strings.TrimSpace(explicit)) {
	case string(contracts.SubdivisionJudicial):
		return contracts.SubdivisionJudicial
	case string(contracts.SubdivisionHacendaria):
		return contracts.SubdivisionHacendaria
	case string(contracts.SubdivisionAdministrativa):
		return contracts.SubdivisionAdministrativa
	}
	haystacks := append([]string{explicit}, contexts...)
	for _, h := range haystacks {
		folded := strings.ToLower(h)
		if folded == "" {
			continue
		}
		for _, entry := range subdivisionCues {
			for _, cue := range entry.cues {
				if strings.Contains(folded, cue) {
					return entry.kind
				}
			}
		}
	}
	return contracts.SubdivisionUnknown
}

// liftPersonas extracts the named party from the dynamic field bag. Flat
// documents name at most one party through Nombre/Paterno/Materno or a
// Denominacion; identity resolution downstream normalizes the RFC and
// derives the persona kind.
func liftPersonas(additional map[string]string) []contracts.Persona {
	nombre := strings.TrimSpace(additional["Nombre"])
	razon := strings.TrimSpace(additional["Denominacion"])
	if razon == "" {
		razon = strings.TrimSpace(additional["RazonSocial"])
	}

	switch {
	case nombre != "":
		return []contracts.Persona{{
			Nombre:      nombre,
			Paterno:     strings.TrimSpace(additional["Paterno"]),
			Materno:     strings.TrimSpace(additional["Materno"]),
			Rfc:         strings.TrimSpace(additional["Rfc"]),
			PersonaTipo: contracts.PersonaFisica,
			Caracter:    strings.TrimSpace(additional["Caracter"]),
			Domicilio:   strings.TrimSpace(additional["Domicilio"]),
		}}
	case razon != "":
		return []contracts.Persona{{
			Nombre:      razon,
			Rfc:         strings.TrimSpace(additional["Rfc"]),
			PersonaTipo: contracts.PersonaMoral,
			Caracter:    strings.TrimSpace(additional["Caracter"]),
			Domicilio:   strings.TrimSpace(additional["Domicilio"]),
		}}
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
