package export_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/crypto"
	"github.com/meridian-compliance/oficios/pkg/events"
	"github.com/meridian-compliance/oficios/pkg/export"
)

type captureSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureSink) LogAudit(_ context.Context, rec audit.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *captureSink) all() []audit.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Record{}, c.records...)
}

func newTestStage(t *testing.T) (*export.Stage, *crypto.Ed25519Signer, *captureSink) {
	t.Helper()
	signer, err := crypto.NewEd25519Signer("test-key")
	require.NoError(t, err)
	sink := &captureSink{}
	recorder := audit.NewRecorder(sink, slog.Default())
	stage := export.NewStage(signer, recorder, slog.Default())
	return stage, signer, sink
}

// exportRecord passes validation: expediente identity, reception date and
// the action's account are all present.
func exportRecord() contracts.UnifiedMetadataRecord {
	return contracts.UnifiedMetadataRecord{
		Expediente: contracts.Expediente{
			NumeroExpediente:        "A/AS1-2025-001",
			NumeroOficio:            "214-3-188/2025",
			Subdivision:             contracts.SubdivisionJudicial,
			AreaDescripcion:         "Aseguramientos judiciales",
			FechaRecepcion:          time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
			FechaEstimadaConclusion: time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		},
		Classification: contracts.ClassificationResult{
			Level1:     contracts.LabelAseguramiento,
			Confidence: 88,
		},
		Personas: []contracts.Persona{
			{ParteID: "p-1", Nombre: "Juan", Paterno: "Pérez", Materno: "García", Rfc: "PEGJ850315AB1"},
		},
		ComplianceActions: []contracts.ComplianceAction{
			{
				ActionType:       contracts.ActionBlock,
				Confidence:       90,
				AccountNumber:    "1234567890",
				Amount:           "1250000.50",
				ExpedienteOrigen: "A/AS1-2025-001",
				OficioOrigen:     "214-3-188/2025",
			},
		},
	}
}

// fakePDF is a minimal original document with two page objects.
func fakePDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Pages /Count 2 >>\nendobj\n" +
		"2 0 obj\n<< /Type /Page /Parent 1 0 R >>\nendobj\n" +
		"3 0 obj\n<< /Type /Page /Parent 1 0 R >>\nendobj\n%%EOF\n")
}

func TestExportRegulatorXMLWritesDocument(t *testing.T) {
	stage, _, sink := newTestStage(t)
	bus := events.NewBus(nil)
	var published []events.Event
	bus.Subscribe(func(e events.Event) { published = append(published, e) })
	stage.WithPublisher(bus)

	var buf bytes.Buffer
	out := stage.ExportRegulatorXML(context.Background(), "file-1", exportRecord(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	rec, _ := out.Value()

	doc := buf.String()
	assert.Contains(t, doc, "<RespuestaOficio")
	assert.Contains(t, doc, "urn:regulador:oficios:respuesta:v1")
	assert.Contains(t, doc, "<NumeroOficio>214-3-188/2025</NumeroOficio>")
	assert.Contains(t, doc, `nivel1="Aseguramiento"`)
	assert.Contains(t, doc, "<Rfc>PEGJ850315AB1</Rfc>")
	assert.Contains(t, doc, `tipo="BLOCK"`)

	assert.Equal(t, export.KindRegulatorXML, rec.Kind)
	assert.Equal(t, crypto.HashSHA256(buf.Bytes()), rec.SHA256)
	assert.Equal(t, int64(buf.Len()), rec.SizeBytes)
	assert.NotEmpty(t, rec.ArtifactID)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionExport, records[0].ActionType)
	assert.Equal(t, audit.StageExport, records[0].Stage)
	assert.True(t, records[0].Success)

	require.Len(t, published, 1)
	assert.Equal(t, events.TypeExportCompleted, published[0].Type)
	assert.Equal(t, rec.ArtifactID, published[0].ExportCompleted.ArtifactID)
}

func TestExportRegulatorXMLBlockedByValidation(t *testing.T) {
	stage, _, sink := newTestStage(t)
	record := exportRecord()
	record.Expediente.NumeroOficio = ""

	var buf bytes.Buffer
	out := stage.ExportRegulatorXML(context.Background(), "file-1", record, &buf)
	require.True(t, out.IsFailure())
	assert.Contains(t, out.Err().Error(), "NumeroOficio")
	assert.Zero(t, buf.Len(), "a blocked export must not touch the stream")

	records := sink.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].ErrorMessage, "NumeroOficio")
}

func TestExportRegulatorXMLPreCancelled(t *testing.T) {
	stage, _, sink := newTestStage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	out := stage.ExportRegulatorXML(ctx, "file-1", exportRecord(), &buf)
	assert.True(t, out.IsCancelled())
	assert.Zero(t, buf.Len())
	assert.Empty(t, sink.all())
}

func TestGenerateExcelLayoutContent(t *testing.T) {
	stage, _, _ := newTestStage(t)

	var buf bytes.Buffer
	out := stage.GenerateExcelLayout(context.Background(), "file-1", exportRecord(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	rec, _ := out.Value()

	doc := buf.String()
	assert.Contains(t, doc, `<?mso-application progid="Excel.Sheet"?>`)
	assert.Contains(t, doc, `ss:Name="Registro"`)
	assert.Contains(t, doc, `ss:Name="Layout"`)
	assert.Contains(t, doc, "NumeroExpediente")
	assert.Contains(t, doc, "Juan")
	assert.Contains(t, doc, "1234567890")
	assert.Contains(t, doc, export.CurrentLayoutVersion)

	assert.Equal(t, export.KindExcelLayout, rec.Kind)
	assert.Equal(t, export.CurrentLayoutVersion, rec.LayoutVersion)
}

func TestExcelLayoutRowsPerPersonaAction(t *testing.T) {
	stage, _, _ := newTestStage(t)
	record := exportRecord()
	record.Personas = append(record.Personas, contracts.Persona{
		ParteID: "p-2", Nombre: "María", Paterno: "López", Rfc: "LOPM900101XY2",
	})
	record.ComplianceActions = append(record.ComplianceActions, contracts.ComplianceAction{
		ActionType: contracts.ActionDocument, Confidence: 70,
	})

	var buf bytes.Buffer
	out := stage.GenerateExcelLayout(context.Background(), "file-1", record, &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())

	// header + 2 personas x 2 actions on the data sheet, 2 rows on the
	// metadata sheet
	rows := strings.Count(buf.String(), "<Row>")
	assert.Equal(t, 7, rows)
}

func TestNewExcelLayoutGeneratorVersionGate(t *testing.T) {
	for _, version := range []string{"1.0.0", "1.2.0", "1.9.3"} {
		gen, err := export.NewExcelLayoutGenerator(version)
		require.NoError(t, err, version)
		assert.Equal(t, version, gen.Version())
	}
	for _, version := range []string{"0.9.0", "2.0.0", "3.1.4", "not-a-version"} {
		_, err := export.NewExcelLayoutGenerator(version)
		assert.Error(t, err, version)
	}
}

func TestExportSignedPDFVerifies(t *testing.T) {
	stage, signer, sink := newTestStage(t)

	var buf bytes.Buffer
	out := stage.ExportSignedPDFWithSummarization(context.Background(), "file-1", exportRecord(), fakePDF(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	rec, _ := out.Value()

	assert.True(t, rec.HasSummary)
	assert.NotEmpty(t, rec.Signature)
	assert.Equal(t, export.SignatureKeyID(signer.PublicKey()), rec.SignatureKeyID)

	data := buf.Bytes()
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4")))

	ok, err := export.VerifySignedPDF(data, signer.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)

	// flipping one body byte must break the signature
	tampered := append([]byte{}, data...)
	tampered[20] ^= 0x01
	ok, err = export.VerifySignedPDF(tampered, signer.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)

	records := sink.all()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Contains(t, records[0].ActionDetails, `"has_summary":true`)
}

func TestExportSignedPDFSummaryFromOriginal(t *testing.T) {
	stage, _, _ := newTestStage(t)

	var buf bytes.Buffer
	out := stage.ExportSignedPDFWithSummarization(context.Background(), "file-1", exportRecord(), fakePDF(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())

	body, _, _, err := export.ParseSignature(buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, string(body), "Resumen del requerimiento:")
}

type failingSummarizer struct{ err error }

func (f failingSummarizer) Summarize(context.Context, []byte, contracts.UnifiedMetadataRecord) (string, error) {
	return "", f.err
}

func TestExportSignedPDFSummarizerFailureIsAdvisory(t *testing.T) {
	stage, signer, _ := newTestStage(t)
	stage.WithSummarizer(failingSummarizer{err: assert.AnError})

	var buf bytes.Buffer
	out := stage.ExportSignedPDFWithSummarization(context.Background(), "file-1", exportRecord(), fakePDF(), &buf)
	require.True(t, out.IsSuccess(), "a summarizer failure must not block the export")
	rec, _ := out.Value()
	assert.False(t, rec.HasSummary)

	ok, err := export.VerifySignedPDF(buf.Bytes(), signer.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExportSignedPDFSummarizerCancelled(t *testing.T) {
	stage, _, sink := newTestStage(t)
	stage.WithSummarizer(failingSummarizer{err: context.Canceled})

	var buf bytes.Buffer
	out := stage.ExportSignedPDFWithSummarization(context.Background(), "file-1", exportRecord(), fakePDF(), &buf)
	assert.True(t, out.IsCancelled())
	assert.Zero(t, buf.Len(), "a cancelled export must not touch the stream")
	assert.Empty(t, sink.all())
}

func TestExportSignedPDFWithoutOriginal(t *testing.T) {
	stage, _, sink := newTestStage(t)

	var buf bytes.Buffer
	out := stage.ExportSignedPDFWithSummarization(context.Background(), "file-1", exportRecord(), nil, &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	rec, _ := out.Value()
	assert.False(t, rec.HasSummary)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].ActionDetails, `"has_summary":false`)
}

func TestRequirementSummarizerText(t *testing.T) {
	summary, err := export.RequirementSummarizer{}.Summarize(context.Background(), fakePDF(), exportRecord())
	require.NoError(t, err)

	assert.Contains(t, summary, "Oficio 214-3-188/2025")
	assert.Contains(t, summary, "expediente A/AS1-2025-001")
	assert.Contains(t, summary, "aseguramiento de la cuenta 1234567890")
	assert.Contains(t, summary, "por 1250000.50")
	assert.Contains(t, summary, "Involucra a 1 persona.")
	assert.Contains(t, summary, "2 pagina(s)")
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := export.NewTokenIssuer([]byte("s3cret-s3cret"), time.Hour)
	require.NoError(t, err)

	rec := export.Receipt{
		ArtifactID: "art-1",
		FileID:     "file-1",
		Kind:       export.KindSignedPDF,
		SHA256:     "abc123",
	}
	token, err := issuer.Mint(rec)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "art-1", claims.ArtifactID)
	assert.Equal(t, "file-1", claims.Subject)
	assert.Equal(t, "pdf", claims.Kind)
	assert.Equal(t, "abc123", claims.SHA256)

	other, err := export.NewTokenIssuer([]byte("different-key"), time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.Error(t, err, "a token signed with another secret must not verify")
}

func TestTokenExpiry(t *testing.T) {
	issuer, err := export.NewTokenIssuer([]byte("s3cret-s3cret"), time.Minute)
	require.NoError(t, err)
	minted := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	issuer.WithClock(func() time.Time { return minted })

	token, err := issuer.Mint(export.Receipt{ArtifactID: "art-1", FileID: "file-1"})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.NoError(t, err)

	issuer.WithClock(func() time.Time { return minted.Add(2 * time.Minute) })
	_, err = issuer.Verify(token)
	assert.Error(t, err, "an expired token must not verify")
}

func TestDownloadTokenFromStage(t *testing.T) {
	stage, _, _ := newTestStage(t)
	issuer, err := export.NewTokenIssuer([]byte("s3cret-s3cret"), time.Hour)
	require.NoError(t, err)
	stage.WithTokens(issuer)

	var buf bytes.Buffer
	out := stage.ExportRegulatorXML(context.Background(), "file-1", exportRecord(), &buf)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	rec, _ := out.Value()

	token, err := stage.DownloadToken(context.Background(), rec.ArtifactID)
	require.NoError(t, err)
	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, rec.ArtifactID, claims.ArtifactID)
	assert.Equal(t, rec.SHA256, claims.SHA256)

	_, err = stage.DownloadToken(context.Background(), "missing-artifact")
	assert.Error(t, err)
}

func TestMemoryReceiptStore(t *testing.T) {
	store := export.NewMemoryReceiptStore()
	ctx := context.Background()

	require.NoError(t, store.SaveReceipt(ctx, export.Receipt{ArtifactID: "a-1", FileID: "f-1", Kind: export.KindRegulatorXML}))
	require.NoError(t, store.SaveReceipt(ctx, export.Receipt{ArtifactID: "a-2", FileID: "f-1", Kind: export.KindSignedPDF}))
	require.NoError(t, store.SaveReceipt(ctx, export.Receipt{ArtifactID: "a-3", FileID: "f-2", Kind: export.KindExcelLayout}))

	rec, err := store.GetReceipt(ctx, "a-2")
	require.NoError(t, err)
	assert.Equal(t, export.KindSignedPDF, rec.Kind)

	_, err = store.GetReceipt(ctx, "a-404")
	assert.ErrorIs(t, err, export.ErrReceiptNotFound)

	list, err := store.ListReceipts(ctx, "f-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-1", list[0].ArtifactID)
	assert.Equal(t, "a-2", list[1].ArtifactID)
}
