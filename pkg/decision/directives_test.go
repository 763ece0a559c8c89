package decision_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/decision"
)

var testExpediente = contracts.Expediente{
	NumeroExpediente: "A/AS1-2025-001",
	NumeroOficio:     "214-3-188/2025",
}

func TestClassifyDirectivesStrongBlock(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	actions, err := c.ClassifyDirectives(context.Background(),
		"Se ordena el ASEGURAMIENTO de la cuenta 0123456789012345 por $1,250,000.50",
		testExpediente)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	a := actions[0]
	assert.Equal(t, contracts.ActionBlock, a.ActionType)
	assert.Equal(t, 90, a.Confidence)
	assert.Equal(t, "0123456789012345", a.AccountNumber)
	assert.Equal(t, "1250000.50", a.Amount)
	assert.Equal(t, "A/AS1-2025-001", a.ExpedienteOrigen)
	assert.Equal(t, "214-3-188/2025", a.OficioOrigen)
}

func TestClassifyDirectivesClabeFillsCuenta(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	actions, err := c.ClassifyDirectives(context.Background(),
		"transferencia a la CLABE 012345678901234567 por 5000.00 pesos",
		testExpediente)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	a := actions[0]
	assert.Equal(t, contracts.ActionTransfer, a.ActionType)
	require.NotNil(t, a.Cuenta)
	assert.Equal(t, "012345678901234567", a.Cuenta.Clabe)
	assert.Equal(t, "5000.00", a.Amount)
}

func TestClassifyDirectivesWholeWordMatching(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	actions, err := c.ClassifyDirectives(context.Background(),
		"se solicita el desbloqueo de la cuenta 1234567890", testExpediente)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, contracts.ActionUnblock, actions[0].ActionType,
		"\"bloqueo\" must not match inside \"desbloqueo\"")
}

func TestClassifyDirectivesMultipleInFixedOrder(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	actions, err := c.ClassifyDirectives(context.Background(),
		"requerimiento de informacion y copia certificada del expediente; ademas el aseguramiento de la cuenta 1234567890",
		testExpediente)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, contracts.ActionBlock, actions[0].ActionType)
	assert.Equal(t, contracts.ActionDocument, actions[1].ActionType)
	assert.Equal(t, contracts.ActionInformation, actions[2].ActionType)
}

func TestClassifyDirectivesAccountWithoutDirective(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	actions, err := c.ClassifyDirectives(context.Background(),
		"se hace referencia a la cuenta 1234567890 del contribuyente", testExpediente)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, contracts.ActionUnknownType, actions[0].ActionType)
	assert.Equal(t, 30, actions[0].Confidence)
}

func TestClassifyDirectivesNoSignal(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	actions, err := c.ClassifyDirectives(context.Background(),
		"atentamente, el juzgado", testExpediente)
	require.NoError(t, err)
	assert.Empty(t, actions)

	actions, err = c.ClassifyDirectives(context.Background(), "   ", testExpediente)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestDetectInstruments(t *testing.T) {
	c := decision.NewKeywordDirectiveClassifier()

	found, err := c.DetectInstruments(context.Background(),
		"en cumplimiento a la resolución dictada, se gira el presente OFICIO")
	require.NoError(t, err)
	assert.Equal(t, []string{"oficio", "resolucion"}, found)
}

func TestClassifyLegalDirectivesAuditsActionSummary(t *testing.T) {
	stage, _, sink := newTestStage(t)

	out := stage.ClassifyLegalDirectives(context.Background(), "file-1",
		"se ordena el aseguramiento de la cuenta 1234567890", testExpediente)
	require.True(t, out.IsSuccess(), "outcome: %v", out.Err())

	records := sink.all()
	require.Len(t, records, 1)
	var details struct {
		Step    string `json:"step"`
		Actions []struct {
			ActionType    string `json:"action_type"`
			Confidence    int    `json:"confidence"`
			AccountNumber string `json:"account_number"`
		} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(records[0].ActionDetails), &details))
	assert.Equal(t, "classify_directives", details.Step)
	require.Len(t, details.Actions, 1)
	assert.Equal(t, "BLOCK", details.Actions[0].ActionType)
	assert.Equal(t, "1234567890", details.Actions[0].AccountNumber)
}

func TestClassifyLegalDirectivesInstrumentDetectionNonBlocking(t *testing.T) {
	stage, _, _ := newTestStage(t)
	stage.WithClassifier(&instrumentFailingClassifier{})

	out := stage.ClassifyLegalDirectives(context.Background(), "file-1", "texto", testExpediente)
	require.True(t, out.IsSuccess(), "a failing instrument pass must not block classification")
	actions, _ := out.Value()
	assert.Len(t, actions, 1)
}

type instrumentFailingClassifier struct{}

func (*instrumentFailingClassifier) DetectInstruments(context.Context, string) ([]string, error) {
	return nil, assert.AnError
}

func (*instrumentFailingClassifier) ClassifyDirectives(_ context.Context, _ string, exp contracts.Expediente) ([]contracts.ComplianceAction, error) {
	return []contracts.ComplianceAction{{ActionType: contracts.ActionInformation, Confidence: 70}}, nil
}
