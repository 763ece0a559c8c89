package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/extraction"
	"github.com/meridian-compliance/oficios/pkg/pipeline"
	"github.com/meridian-compliance/oficios/pkg/sla"
)

func extractionWith(fields map[string]string) extraction.Result {
	return extraction.Result{
		FileID: "f-1",
		Format: contracts.FormatXML,
		Metadata: contracts.ExtractedMetadata{
			Fields: fields,
			Source: contracts.SourceXML,
		},
		Classification: contracts.ClassificationResult{
			Level1:     contracts.LabelAseguramiento,
			Confidence: 90,
		},
	}
}

func TestBuildRecord_PopulatesExpediente(t *testing.T) {
	res := extractionWith(map[string]string{
		"Expediente":      "A/AS1-2025-001",
		"NumeroOficio":    "214-3-188/2025",
		"AreaDescripcion": "Juzgado Quinto de Distrito en Materia Penal",
		"FundamentoLegal": "Articulo 142 LIC",
		"MedioEnvio":      "SIARA",
		"FechaRecepcion":  "06/01/2025",
	})
	file := contracts.FileMetadata{FileID: "f-1"}

	rec := pipeline.BuildRecord(nil, sla.NewCalendar(), file, res)

	assert.Equal(t, "A/AS1-2025-001", rec.Expediente.NumeroExpediente)
	assert.Equal(t, "214-3-188/2025", rec.Expediente.NumeroOficio)
	assert.Equal(t, "Articulo 142 LIC", rec.Expediente.FundamentoLegal)
	assert.Equal(t, "SIARA", rec.Expediente.MedioEnvio)
	assert.Equal(t, contracts.SubdivisionJudicial, rec.Expediente.Subdivision)
	assert.Equal(t, time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), rec.Expediente.FechaRecepcion)
	assert.True(t, rec.Validation.IsValid(), "missing: %v", rec.Validation.Missing)
}

func TestBuildRecord_DerivesDatesFromPublication(t *testing.T) {
	res := extractionWith(map[string]string{
		"Expediente":       "B/2025-77",
		"NumeroOficio":     "110-22/2025",
		"AreaDescripcion":  "Juzgado Tercero",
		"FechaPublicacion": "2025-01-06",
		"DiasPlazo":        "5",
	})

	rec := pipeline.BuildRecord(nil, sla.NewCalendar(), contracts.FileMetadata{FileID: "f-1"}, res)

	assert.Equal(t, time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), rec.Expediente.FechaRecepcion)
	// Five business days from Monday the 6th.
	assert.Equal(t, time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC), rec.Expediente.FechaEstimadaConclusion)
}

func TestBuildRecord_FallsBackToDownloadDate(t *testing.T) {
	res := extractionWith(map[string]string{
		"Expediente":   "C/2025-3",
		"NumeroOficio": "99-1/2025",
	})
	file := contracts.FileMetadata{
		FileID:            "f-1",
		DownloadTimestamp: time.Date(2025, time.March, 10, 15, 4, 5, 0, time.UTC),
	}

	rec := pipeline.BuildRecord(nil, nil, file, res)

	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), rec.Expediente.FechaRecepcion)
	assert.True(t, rec.Expediente.FechaEstimadaConclusion.IsZero())
}

func TestBuildRecord_SubdivisionInference(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
		want   contracts.LegalSubdivisionKind
	}{
		{
			name:   "explicit field wins",
			fields: map[string]string{"Subdivision": "HACENDARIA", "AreaDescripcion": "Juzgado Primero"},
			want:   contracts.SubdivisionHacendaria,
		},
		{
			name:   "judicial from area vocabulary",
			fields: map[string]string{"AreaDescripcion": "Tribunal Colegiado"},
			want:   contracts.SubdivisionJudicial,
		},
		{
			name:   "hacendaria from revenue office",
			fields: map[string]string{"AreaDescripcion": "Administracion Desconcentrada de Recaudacion del SAT"},
			want:   contracts.SubdivisionHacendaria,
		},
		{
			name:   "administrativa from condusef",
			fields: map[string]string{"AreaDescripcion": "Direccion de Atencion CONDUSEF"},
			want:   contracts.SubdivisionAdministrativa,
		},
		{
			name:   "unknown without cues",
			fields: map[string]string{"AreaDescripcion": "Oficina de Partes"},
			want:   contracts.SubdivisionUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := map[string]string{"Expediente": "X-1", "NumeroOficio": "Y-1"}
			for k, v := range tc.fields {
				fields[k] = v
			}
			rec := pipeline.BuildRecord(nil, nil, contracts.FileMetadata{FileID: "f-1"}, extractionWith(fields))
			assert.Equal(t, tc.want, rec.Expediente.Subdivision)
		})
	}
}

func TestBuildRecord_LiftsFisicaPersona(t *testing.T) {
	res := extractionWith(map[string]string{
		"Expediente":   "A-1",
		"NumeroOficio": "O-1",
		"Nombre":       "Juan",
		"Paterno":      "Perez",
		"Materno":      "Garcia",
		"Rfc":          "PEGJ850315AB1",
	})

	rec := pipeline.BuildRecord(nil, nil, contracts.FileMetadata{FileID: "f-1"}, res)

	require.Len(t, rec.Personas, 1)
	p := rec.Personas[0]
	assert.Equal(t, "Juan", p.Nombre)
	assert.Equal(t, "Perez", p.Paterno)
	assert.Equal(t, "Garcia", p.Materno)
	assert.Equal(t, "PEGJ850315AB1", p.Rfc)
	assert.Equal(t, contracts.PersonaFisica, p.PersonaTipo)
}

func TestBuildRecord_LiftsMoralPersona(t *testing.T) {
	res := extractionWith(map[string]string{
		"Expediente":   "A-1",
		"NumeroOficio": "O-1",
		"Denominacion": "Comercializadora del Norte SA de CV",
	})

	rec := pipeline.BuildRecord(nil, nil, contracts.FileMetadata{FileID: "f-1"}, res)

	require.Len(t, rec.Personas, 1)
	assert.Equal(t, "Comercializadora del Norte SA de CV", rec.Personas[0].Nombre)
	assert.Equal(t, contracts.PersonaMoral, rec.Personas[0].PersonaTipo)
}

func TestBuildRecord_NoPersonaWithoutName(t *testing.T) {
	res := extractionWith(map[string]string{
		"Expediente":   "A-1",
		"NumeroOficio": "O-1",
		"Rfc":          "PEGJ850315AB1",
	})

	rec := pipeline.BuildRecord(nil, nil, contracts.FileMetadata{FileID: "f-1"}, res)

	assert.Empty(t, rec.Personas)
}

func TestBuildRecord_ValidationFlagsMissing(t *testing.T) {
	res := extractionWith(map[string]string{"Causa": "investigacion"})

	rec := pipeline.BuildRecord(nil, nil, contracts.FileMetadata{FileID: "f-1"}, res)

	assert.False(t, rec.Validation.IsValid())
	assert.Contains(t, rec.Validation.Missing, "NumeroExpediente")
	assert.Contains(t, rec.Validation.Missing, "NumeroOficio")
	assert.Contains(t, rec.Validation.Missing, "Subdivision")
}
