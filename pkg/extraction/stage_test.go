package extraction_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/config"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/extraction"
	"github.com/meridian-compliance/oficios/pkg/storage"
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

func newTestStage(t *testing.T) (*extraction.Stage, *storage.FileStore, *captureSink) {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "docs"))
	require.NoError(t, err)
	sink := &captureSink{}
	recorder := audit.NewRecorder(sink, slog.Default())
	stage := extraction.NewStage(store, recorder, config.DefaultProcessingConfig(), nil, slog.Default())
	return stage, store, sink
}

const stageXML = `<?xml version="1.0"?>
<Oficio>
  <NumeroOficio>214-3-188/2025</NumeroOficio>
  <Expediente>A/AS1-2025-001</Expediente>
  <Causa>Aseguramiento de cuentas bancarias</Causa>
  <AccionSolicitada>Inmovilizar las cuentas de la parte demandada</AccionSolicitada>
</Oficio>`

func saveFile(t *testing.T, store *storage.FileStore, data []byte, name string, format contracts.FileFormat) contracts.FileMetadata {
	t.Helper()
	token, err := store.Save(context.Background(), data, format)
	require.NoError(t, err)
	return contracts.FileMetadata{
		FileID:   "file-" + name,
		FileName: name,
		FilePath: token,
		Format:   format,
	}
}

func TestStageProcessXMLDocument(t *testing.T) {
	stage, store, sink := newTestStage(t)
	file := saveFile(t, store, []byte(stageXML), "oficio.xml", contracts.FormatXML)
	ctx := audit.WithCorrelationID(context.Background(), "corr-stage-1")

	out := stage.Process(ctx, file)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())
	res, _ := out.Value()

	assert.Equal(t, contracts.FormatXML, res.Format)
	assert.Equal(t, extraction.StateMoved, res.State)
	assert.Equal(t, contracts.LabelAseguramiento, res.Classification.Level1)
	assert.Equal(t, "A/AS1-2025-001", res.Fields.Expediente)
	assert.Contains(t, res.OrganizedPath, "organized/Aseguramiento")
	assert.Contains(t, res.SafeName, "AAS12025001")

	moved, err := store.Exists(ctx, res.OrganizedPath)
	require.NoError(t, err)
	assert.True(t, moved, "document should live at the organized path")
	old, err := store.Exists(ctx, file.FilePath)
	require.NoError(t, err)
	assert.False(t, old, "original blob token should be gone")

	records := sink.all()
	require.Len(t, records, 5, "one record per transition")
	transitions := make([]string, 0, len(records))
	for _, rec := range records {
		require.True(t, rec.Success)
		require.Equal(t, audit.StageExtraction, rec.Stage)
		require.Equal(t, "corr-stage-1", rec.CorrelationID)
		require.Equal(t, file.FileID, rec.FileID)
		var details map[string]any
		require.NoError(t, json.Unmarshal([]byte(rec.ActionDetails), &details))
		transitions = append(transitions, details["transition"].(string))
	}
	assert.Equal(t, []string{"identified", "extracted", "classified", "named", "moved"}, transitions)
}

func TestStageAuditsAllSixScores(t *testing.T) {
	stage, store, sink := newTestStage(t)
	file := saveFile(t, store, []byte(stageXML), "oficio.xml", contracts.FormatXML)

	out := stage.Process(context.Background(), file)
	require.True(t, out.IsSuccess())

	var classification *audit.Record
	for _, rec := range sink.all() {
		if rec.ActionType == audit.ActionClassification {
			rec := rec
			classification = &rec
		}
	}
	require.NotNil(t, classification, "classification transition must be audited")

	var details struct {
		Level1     string             `json:"level1"`
		Confidence int                `json:"confidence"`
		Scores     map[string]float64 `json:"scores"`
	}
	require.NoError(t, json.Unmarshal([]byte(classification.ActionDetails), &details))
	assert.Equal(t, "Aseguramiento", details.Level1)
	assert.GreaterOrEqual(t, details.Confidence, 80)
	require.Len(t, details.Scores, 6, "every label's score is audited")
	for _, label := range contracts.ClassificationLabels {
		score, ok := details.Scores[string(label)]
		require.True(t, ok, "missing score for %s", label)
		assert.LessOrEqual(t, score, details.Scores["Aseguramiento"])
	}
}

func TestStageUnknownFormatFails(t *testing.T) {
	stage, store, sink := newTestStage(t)
	file := saveFile(t, store, []byte("not a known document"), "oficio.dat", contracts.FormatUnknown)

	out := stage.Process(context.Background(), file)
	require.True(t, out.IsFailure())
	assert.ErrorContains(t, out.Err(), "unrecognized format")

	records := sink.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, audit.ActionExtraction, records[0].ActionType)
}

func TestStageZipIsUnsupported(t *testing.T) {
	stage, store, sink := newTestStage(t)
	archive := zipBytes(t, map[string]string{"inner.txt": "hola"})
	file := saveFile(t, store, archive, "batch.zip", contracts.FormatZIP)

	out := stage.Process(context.Background(), file)
	require.True(t, out.IsFailure())
	assert.ErrorContains(t, out.Err(), "no extractor for format ZIP")

	records := sink.all()
	require.Len(t, records, 2, "identify succeeds, extract fails")
	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success)
}

func TestStagePreCancelledWritesNothing(t *testing.T) {
	stage, store, sink := newTestStage(t)
	file := saveFile(t, store, []byte(stageXML), "oficio.xml", contracts.FormatXML)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := stage.Process(ctx, file)

	assert.True(t, out.IsCancelled())
	assert.Empty(t, sink.all(), "a pre-cancelled call must leave no audit trace")
}

func TestStageCollisionGetsSuffix(t *testing.T) {
	stage, store, _ := newTestStage(t)

	first := saveFile(t, store, []byte(stageXML), "oficio.xml", contracts.FormatXML)
	out1 := stage.Process(context.Background(), first)
	require.True(t, out1.IsSuccess())

	// Same name and classification, different bytes.
	second := saveFile(t, store, []byte(stageXML+"\n<!-- reissued -->"), "oficio.xml", contracts.FormatXML)
	out2 := stage.Process(context.Background(), second)
	require.True(t, out2.IsSuccess())

	r1, _ := out1.Value()
	r2, _ := out2.Value()
	assert.NotEqual(t, r1.OrganizedPath, r2.OrganizedPath)
	assert.Contains(t, r2.OrganizedPath, "-2")
}

func TestStageMissingBlobFails(t *testing.T) {
	stage, _, sink := newTestStage(t)
	file := contracts.FileMetadata{FileID: "f1", FileName: "gone.xml", FilePath: "blobs/aa/missing.xml"}

	out := stage.Process(context.Background(), file)
	require.True(t, out.IsFailure())
	records := sink.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.NotEmpty(t, records[0].ErrorMessage)
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
