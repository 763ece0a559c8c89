package export

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// regulatorNamespace identifies the response schema generation.
const regulatorNamespace = "urn:regulador:oficios:respuesta:v1"

// dateLayout is the regulator's date format.
const dateLayout = "2006-01-02"

// respuestaOficio is the root of the regulator response document.
type respuestaOficio struct {
	XMLName       xml.Name         `xml:"RespuestaOficio"`
	Namespace     string           `xml:"xmlns,attr"`
	GeneradoEn    string           `xml:"generadoEn,attr"`
	Expediente    expedienteXML    `xml:"Expediente"`
	Clasificacion clasificacionXML `xml:"Clasificacion"`
	Personas      *personasXML     `xml:"Personas,omitempty"`
	Acciones      *accionesXML     `xml:"Acciones,omitempty"`
	Resumen       *resumenXML      `xml:"ResumenRequerimiento,omitempty"`
	Observaciones []observacionXML `xml:"Observaciones>Observacion,omitempty"`
}

type expedienteXML struct {
	NumeroExpediente        string `xml:"NumeroExpediente"`
	NumeroOficio            string `xml:"NumeroOficio"`
	Subdivision             string `xml:"Subdivision"`
	AreaDescripcion         string `xml:"AreaDescripcion,omitempty"`
	FechaRecepcion          string `xml:"FechaRecepcion"`
	FechaEstimadaConclusion string `xml:"FechaEstimadaConclusion,omitempty"`
	FundamentoLegal         string `xml:"FundamentoLegal,omitempty"`
	MedioEnvio              string `xml:"MedioEnvio,omitempty"`
}

type clasificacionXML struct {
	Nivel1    string `xml:"nivel1,attr"`
	Nivel2    string `xml:"nivel2,attr,omitempty"`
	Confianza int    `xml:"confianza,attr"`
}

type personasXML struct {
	Personas []personaXML `xml:"Persona"`
}

type personaXML struct {
	Tipo     string `xml:"tipo,attr,omitempty"`
	Nombre   string `xml:"Nombre"`
	Paterno  string `xml:"Paterno,omitempty"`
	Materno  string `xml:"Materno,omitempty"`
	Rfc      string `xml:"Rfc,omitempty"`
	Caracter string `xml:"Caracter,omitempty"`
	Relacion string `xml:"Relacion,omitempty"`
}

type accionesXML struct {
	Acciones []accionXML `xml:"Accion"`
}

type accionXML struct {
	Tipo         string `xml:"tipo,attr"`
	Confianza    int    `xml:"confianza,attr"`
	NumeroCuenta string `xml:"NumeroCuenta,omitempty"`
	Clabe        string `xml:"Clabe,omitempty"`
	Importe      string `xml:"Importe,omitempty"`
	Expediente   string `xml:"ExpedienteOrigen,omitempty"`
	Oficio       string `xml:"OficioOrigen,omitempty"`
}

type resumenXML struct {
	Texto string `xml:",chardata"`
}

type observacionXML struct {
	Texto string `xml:",chardata"`
}

// ExportRegulatorXML validates record and streams the regulator response
// document to w. A validation failure returns before anything is written.
func (s *Stage) ExportRegulatorXML(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord, w io.Writer) outcome.Outcome[Receipt] {
	if out, done := outcome.Guard[Receipt](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[Receipt] {
		if err := s.requireExportable(ctx, fileID, KindRegulatorXML, &record); err != nil {
			return outcome.Failure[Receipt](err)
		}

		aw := newArtifactWriter(w)
		if err := writeRegulatorXML(aw, record, s.clock().UTC()); err != nil {
			return s.failExport(ctx, fileID, KindRegulatorXML, fmt.Errorf("write regulator xml: %w", err))
		}

		rec := Receipt{
			ArtifactID: uuid.New().String(),
			FileID:     fileID,
			Kind:       KindRegulatorXML,
			SHA256:     aw.sum(),
			SizeBytes:  aw.n,
			CreatedAt:  s.clock().UTC(),
		}
		s.finish(ctx, rec, map[string]any{
			"numero_oficio": record.Expediente.NumeroOficio,
		})
		return outcome.Success(rec)
	})
}

func writeRegulatorXML(w io.Writer, record contracts.UnifiedMetadataRecord, now time.Time) error {
	doc := respuestaOficio{
		Namespace:  regulatorNamespace,
		GeneradoEn: now.Format(time.RFC3339),
		Expediente: expedienteXML{
			NumeroExpediente: record.Expediente.NumeroExpediente,
			NumeroOficio:     record.Expediente.NumeroOficio,
			Subdivision:      string(record.Expediente.Subdivision),
			AreaDescripcion:  record.Expediente.AreaDescripcion,
			FechaRecepcion:   record.Expediente.FechaRecepcion.Format(dateLayout),
			FundamentoLegal:  record.Expediente.FundamentoLegal,
			MedioEnvio:       record.Expediente.MedioEnvio,
		},
		Clasificacion: clasificacionXML{
			Nivel1:    string(record.Classification.Level1),
			Nivel2:    record.Classification.Level2,
			Confianza: record.Classification.Confidence,
		},
	}
	if !record.Expediente.FechaEstimadaConclusion.IsZero() {
		doc.Expediente.FechaEstimadaConclusion = record.Expediente.FechaEstimadaConclusion.Format(dateLayout)
	}

	if len(record.Personas) > 0 {
		ps := &personasXML{Personas: make([]personaXML, 0, len(record.Personas))}
		for _, p := range record.Personas {
			ps.Personas = append(ps.Personas, personaXML{
				Tipo:     string(p.PersonaTipo),
				Nombre:   p.Nombre,
				Paterno:  p.Paterno,
				Materno:  p.Materno,
				Rfc:      p.Rfc,
				Caracter: p.Caracter,
				Relacion: p.Relacion,
			})
		}
		doc.Personas = ps
	}

	if len(record.ComplianceActions) > 0 {
		as := &accionesXML{Acciones: make([]accionXML, 0, len(record.ComplianceActions))}
		for _, a := range record.ComplianceActions {
			ax := accionXML{
				Tipo:         string(a.ActionType),
				Confianza:    a.Confidence,
				NumeroCuenta: a.AccountNumber,
				Importe:      a.Amount,
				Expediente:   a.ExpedienteOrigen,
				Oficio:       a.OficioOrigen,
			}
			if a.Cuenta != nil {
				ax.Clabe = a.Cuenta.Clabe
				if ax.NumeroCuenta == "" {
					ax.NumeroCuenta = a.Cuenta.Numero
				}
			}
			as.Acciones = append(as.Acciones, ax)
		}
		doc.Acciones = as
	}

	if record.RequirementSummary != "" {
		doc.Resumen = &resumenXML{Texto: record.RequirementSummary}
	}
	for _, warning := range record.Validation.Warnings {
		doc.Observaciones = append(doc.Observaciones, observacionXML{Texto: warning})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
