package extraction

import (
	"context"
	"math"
	"strings"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Classifier assigns a document to one of the regulated categories.
type Classifier interface {
	Classify(ctx context.Context, meta contracts.ExtractedMetadata) (contracts.ClassificationResult, error)
}

type keyword struct {
	phrase string // accent-folded lowercase
	weight float64
}

// labelKeywords drives the rule classifier. Phrases are folded the same way
// the corpus is, so accents never matter. Weight 3 marks terms that name the
// category outright, lower weights mark supporting vocabulary.
var labelKeywords = map[contracts.ClassificationLabel][]keyword{
	contracts.LabelAseguramiento: {
		{"aseguramiento", 3},
		{"embargo precautorio", 3},
		{"inmovilizacion", 3},
		{"asegurar", 2},
		{"congelamiento", 2},
		{"bloqueo de cuentas", 2},
	},
	contracts.LabelDesembargo: {
		{"desembargo", 3},
		{"levantamiento de embargo", 3},
		{"desbloqueo", 2},
		{"liberacion de cuentas", 2},
		{"liberacion", 1},
	},
	contracts.LabelDocumentacion: {
		{"documentacion", 3},
		{"copia certificada", 2},
		{"estados de cuenta", 2},
		{"contratos", 1},
		{"documentos", 1},
	},
	contracts.LabelInformacion: {
		{"requerimiento de informacion", 3},
		{"informacion", 2},
		{"solicita informe", 2},
		{"informe", 1},
	},
	contracts.LabelTransferencia: {
		{"transferencia", 3},
		{"transferir", 2},
		{"traspaso", 2},
		{"puesta a disposicion", 2},
		{"spei", 2},
	},
	contracts.LabelOperacionesIlicitas: {
		{"procedencia ilicita", 3},
		{"lavado de dinero", 3},
		{"operaciones ilicitas", 3},
		{"recursos de procedencia", 2},
		{"lista de personas bloqueadas", 2},
	},
}

// level2Keywords refines the winning category. First match in order wins.
var level2Keywords = map[contracts.ClassificationLabel][]struct{ phrase, code string }{
	contracts.LabelAseguramiento: {
		{"cuenta", "Cuentas"},
		{"inmueble", "Inmuebles"},
		{"inversion", "Valores"},
	},
	contracts.LabelDesembargo: {
		{"cuenta", "Cuentas"},
		{"inmueble", "Inmuebles"},
	},
	contracts.LabelDocumentacion: {
		{"estados de cuenta", "EstadosCuenta"},
		{"contrato", "Contratos"},
	},
	contracts.LabelInformacion: {
		{"saldo", "Saldos"},
		{"movimiento", "Movimientos"},
	},
}

// KeywordClassifier is the default rule classifier. Scores are summed
// keyword weights per label, not normalized; confidence is the winning
// share of the total.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify scores meta against every label. Ties, including the all-zero
// corpus, resolve to the first label in the fixed ordering.
func (*KeywordClassifier) Classify(_ context.Context, meta contracts.ExtractedMetadata) (contracts.ClassificationResult, error) {
	corpus := foldCorpus(meta)

	scores := make(map[contracts.ClassificationLabel]float64, len(contracts.ClassificationLabels))
	var total float64
	for _, label := range contracts.ClassificationLabels {
		var score float64
		for _, kw := range labelKeywords[label] {
			if strings.Contains(corpus, kw.phrase) {
				score += kw.weight
			}
		}
		scores[label] = score
		total += score
	}

	winner := contracts.ClassificationLabels[0]
	for _, label := range contracts.ClassificationLabels {
		if scores[label] > scores[winner] {
			winner = label
		}
	}

	confidence := 0
	if total > 0 {
		confidence = int(math.Round(100 * scores[winner] / total))
	}

	return contracts.ClassificationResult{
		Level1:     winner,
		Level2:     level2For(winner, corpus),
		Confidence: confidence,
		Scores:     scores,
	}, nil
}

func level2For(label contracts.ClassificationLabel, corpus string) string {
	for _, entry := range level2Keywords[label] {
		if strings.Contains(corpus, entry.phrase) {
			return entry.code
		}
	}
	return ""
}

func foldCorpus(meta contracts.ExtractedMetadata) string {
	var b strings.Builder
	b.WriteString(meta.RawText)
	for _, value := range meta.Fields {
		b.WriteByte('\n')
		b.WriteString(value)
	}
	return strings.ToLower(foldText(b.String()))
}
