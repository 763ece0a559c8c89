package export

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// CurrentLayoutVersion is the registration layout this build emits.
const CurrentLayoutVersion = "1.2.0"

// supportedLayouts bounds the layout versions this build can still
// produce. Operators may pin an older minor for a regulator that has not
// migrated; a new major means an incompatible column set.
const supportedLayouts = ">=1.0.0, <2.0.0"

// LayoutGenerator emits the tabular registration layout for one record.
type LayoutGenerator interface {
	GenerateLayout(ctx context.Context, record contracts.UnifiedMetadataRecord, w io.Writer) error
	Version() string
}

// layoutColumns is the fixed column set of layout 1.x, one row per
// (persona, accion) combination.
var layoutColumns = []string{
	"NumeroExpediente",
	"NumeroOficio",
	"Subdivision",
	"FechaRecepcion",
	"FechaEstimadaConclusion",
	"PersonaNombre",
	"PersonaPaterno",
	"PersonaMaterno",
	"PersonaRfc",
	"PersonaTipo",
	"Caracter",
	"TipoAccion",
	"ConfianzaAccion",
	"NumeroCuenta",
	"Clabe",
	"Importe",
}

// ExcelLayoutGenerator writes the registration layout as a SpreadsheetML
// workbook, the single-file XML dialect Excel opens natively. No binary
// spreadsheet engine is required on the processing hosts.
type ExcelLayoutGenerator struct {
	version *semver.Version
}

// NewExcelLayoutGenerator builds a generator for the requested layout
// version. Versions outside the supported range are refused.
func NewExcelLayoutGenerator(version string) (*ExcelLayoutGenerator, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("layout version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(supportedLayouts)
	if err != nil {
		return nil, fmt.Errorf("layout constraint: %w", err)
	}
	if !constraint.Check(v) {
		return nil, fmt.Errorf("layout version %s outside supported range %s", v, supportedLayouts)
	}
	return &ExcelLayoutGenerator{version: v}, nil
}

// Version returns the layout version this generator emits.
func (g *ExcelLayoutGenerator) Version() string {
	return g.version.String()
}

// SpreadsheetML document shape. The mso-application instruction is what
// makes Windows hand the file to Excel.
type ssWorkbook struct {
	XMLName   xml.Name      `xml:"Workbook"`
	Xmlns     string        `xml:"xmlns,attr"`
	XmlnsSS   string        `xml:"xmlns:ss,attr"`
	Worksheet []ssWorksheet `xml:"Worksheet"`
}

type ssWorksheet struct {
	Name  string  `xml:"ss:Name,attr"`
	Table ssTable `xml:"Table"`
}

type ssTable struct {
	Rows []ssRow `xml:"Row"`
}

type ssRow struct {
	Cells []ssCell `xml:"Cell"`
}

type ssCell struct {
	Data ssData `xml:"Data"`
}

type ssData struct {
	Type  string `xml:"ss:Type,attr"`
	Value string `xml:",chardata"`
}

func stringRow(values ...string) ssRow {
	row := ssRow{Cells: make([]ssCell, 0, len(values))}
	for _, v := range values {
		row.Cells = append(row.Cells, ssCell{Data: ssData{Type: "String", Value: v}})
	}
	return row
}

// GenerateLayout writes the workbook: a data sheet with the fixed header
// and one row per persona/action combination, and a metadata sheet naming
// the layout version.
func (g *ExcelLayoutGenerator) GenerateLayout(_ context.Context, record contracts.UnifiedMetadataRecord, w io.Writer) error {
	table := ssTable{Rows: []ssRow{stringRow(layoutColumns...)}}
	for _, row := range layoutRows(record) {
		table.Rows = append(table.Rows, stringRow(row...))
	}

	wb := ssWorkbook{
		Xmlns:   "urn:schemas-microsoft-com:office:spreadsheet",
		XmlnsSS: "urn:schemas-microsoft-com:office:spreadsheet",
		Worksheet: []ssWorksheet{
			{Name: "Registro", Table: table},
			{Name: "Layout", Table: ssTable{Rows: []ssRow{
				stringRow("LayoutVersion", g.version.String()),
				stringRow("NumeroOficio", record.Expediente.NumeroOficio),
			}}},
		},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<?mso-application progid=\"Excel.Sheet\"?>\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")
	if err := enc.Encode(wb); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// layoutRows flattens the record: the cartesian product of personas and
// actions, degraded gracefully when either list is empty.
func layoutRows(record contracts.UnifiedMetadataRecord) [][]string {
	exp := record.Expediente
	base := []string{
		exp.NumeroExpediente,
		exp.NumeroOficio,
		string(exp.Subdivision),
		exp.FechaRecepcion.Format(dateLayout),
		"",
	}
	if !exp.FechaEstimadaConclusion.IsZero() {
		base[4] = exp.FechaEstimadaConclusion.Format(dateLayout)
	}

	personas := record.Personas
	if len(personas) == 0 {
		personas = []contracts.Persona{{}}
	}
	actions := record.ComplianceActions
	if len(actions) == 0 {
		actions = []contracts.ComplianceAction{{}}
	}

	rows := make([][]string, 0, len(personas)*len(actions))
	for _, p := range personas {
		for _, a := range actions {
			row := append(append([]string{}, base...),
				p.Nombre,
				p.Paterno,
				p.Materno,
				p.Rfc,
				string(p.PersonaTipo),
				p.Caracter,
				string(a.ActionType),
				confidenceCell(a),
				a.AccountNumber,
				clabeCell(a),
				a.Amount,
			)
			rows = append(rows, row)
		}
	}
	return rows
}

func confidenceCell(a contracts.ComplianceAction) string {
	if a.ActionType == "" {
		return ""
	}
	return fmt.Sprintf("%d", a.Confidence)
}

func clabeCell(a contracts.ComplianceAction) string {
	if a.Cuenta == nil {
		return ""
	}
	return a.Cuenta.Clabe
}

// GenerateExcelLayout validates record and writes the registration layout
// workbook to w. A validation failure returns before anything is written.
func (s *Stage) GenerateExcelLayout(ctx context.Context, fileID string, record contracts.UnifiedMetadataRecord, w io.Writer) outcome.Outcome[Receipt] {
	if out, done := outcome.Guard[Receipt](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[Receipt] {
		if err := s.requireExportable(ctx, fileID, KindExcelLayout, &record); err != nil {
			return outcome.Failure[Receipt](err)
		}

		aw := newArtifactWriter(w)
		if err := s.layout.GenerateLayout(ctx, record, aw); err != nil {
			return s.failExport(ctx, fileID, KindExcelLayout, fmt.Errorf("generate excel layout: %w", err))
		}

		rec := Receipt{
			ArtifactID:    uuid.New().String(),
			FileID:        fileID,
			Kind:          KindExcelLayout,
			SHA256:        aw.sum(),
			SizeBytes:     aw.n,
			LayoutVersion: s.layout.Version(),
			CreatedAt:     s.clock().UTC(),
		}
		s.finish(ctx, rec, map[string]any{
			"layout_version": s.layout.Version(),
			"numero_oficio":  record.Expediente.NumeroOficio,
		})
		return outcome.Success(rec)
	})
}
