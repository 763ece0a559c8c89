package decision

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/transform"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// DirectiveClassifier extracts operational directives from legal text.
// DetectInstruments is advisory and must not block; ClassifyDirectives
// produces the concrete actions.
type DirectiveClassifier interface {
	DetectInstruments(ctx context.Context, text string) ([]string, error)
	ClassifyDirectives(ctx context.Context, text string, exp contracts.Expediente) ([]contracts.ComplianceAction, error)
}

// ClassifyLegalDirectives detects the legal instruments present in text
// and derives the compliance actions it orders. Every action leaves with
// its originating expediente and oficio filled in; the audit record
// carries a summary of the produced actions.
func (s *Stage) ClassifyLegalDirectives(ctx context.Context, fileID, text string, exp contracts.Expediente) outcome.Outcome[[]contracts.ComplianceAction] {
	if out, done := outcome.Guard[[]contracts.ComplianceAction](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[[]contracts.ComplianceAction] {
		return s.classifyDirectives(ctx, fileID, text, exp)
	})
}

func (s *Stage) classifyDirectives(ctx context.Context, fileID, text string, exp contracts.Expediente) outcome.Outcome[[]contracts.ComplianceAction] {
	if out, done := outcome.Guard[[]contracts.ComplianceAction](ctx); done {
		return out
	}

	instruments, err := s.classifier.DetectInstruments(ctx, text)
	if err != nil {
		if out := outcome.FromErr[[]contracts.ComplianceAction](err); out.IsCancelled() {
			return out
		}
		instruments = nil
		s.log.Warn("instrument detection failed", "file_id", fileID, "error", err)
	}

	actions, err := s.classifier.ClassifyDirectives(ctx, text, exp)
	if err != nil {
		if out := outcome.FromErr[[]contracts.ComplianceAction](err); out.IsCancelled() {
			return out
		}
		s.recorder.Record(ctx, audit.ActionClassification, audit.StageDecisionLogic, fileID, false,
			audit.Details(map[string]any{"step": "classify_directives"}), err.Error())
		s.log.Warn("directive classification failed", "file_id", fileID, "error", err)
		return outcome.Failuref[[]contracts.ComplianceAction]("classify directives: %w", err)
	}

	for i := range actions {
		if actions[i].ExpedienteOrigen == "" {
			actions[i].ExpedienteOrigen = exp.NumeroExpediente
		}
		if actions[i].OficioOrigen == "" {
			actions[i].OficioOrigen = exp.NumeroOficio
		}
	}

	s.recorder.Record(ctx, audit.ActionClassification, audit.StageDecisionLogic, fileID, true,
		audit.Details(map[string]any{
			"step":        "classify_directives",
			"instruments": instruments,
			"actions":     actionSummaries(actions),
		}), "")
	return outcome.Success(actions)
}

// actionSummaries is the audit-facing shape of a produced action list.
func actionSummaries(actions []contracts.ComplianceAction) []map[string]any {
	out := make([]map[string]any, len(actions))
	for i, a := range actions {
		m := map[string]any{
			"action_type": a.ActionType,
			"confidence":  a.Confidence,
		}
		if a.AccountNumber != "" {
			m["account_number"] = a.AccountNumber
		}
		if a.Amount != "" {
			m["amount"] = a.Amount
		}
		out[i] = m
	}
	return out
}

// Directive confidence tiers. A strong phrase names the order outright.
const (
	strongConfidence  = 90
	weakConfidence    = 70
	unknownConfidence = 30
)

// directiveRule maps one folded keyword phrase to an action type.
type directiveRule struct {
	phrase string
	action contracts.ComplianceActionType
	strong bool
}

var directiveRules = []directiveRule{
	{"aseguramiento", contracts.ActionBlock, true},
	{"embargo precautorio", contracts.ActionBlock, true},
	{"inmovilizacion", contracts.ActionBlock, true},
	{"congelamiento", contracts.ActionBlock, false},
	{"bloqueo", contracts.ActionBlock, false},
	{"asegurar", contracts.ActionBlock, false},
	{"desembargo", contracts.ActionUnblock, true},
	{"levantamiento de embargo", contracts.ActionUnblock, true},
	{"desbloqueo", contracts.ActionUnblock, false},
	{"liberacion", contracts.ActionUnblock, false},
	{"transferencia", contracts.ActionTransfer, true},
	{"traspaso", contracts.ActionTransfer, false},
	{"puesta a disposicion", contracts.ActionTransfer, false},
	{"transferir", contracts.ActionTransfer, false},
	{"documentacion", contracts.ActionDocument, true},
	{"copia certificada", contracts.ActionDocument, false},
	{"estados de cuenta", contracts.ActionDocument, false},
	{"documentos", contracts.ActionDocument, false},
	{"requerimiento de informacion", contracts.ActionInformation, true},
	{"informacion", contracts.ActionInformation, false},
	{"informe", contracts.ActionInformation, false},
	{"informes", contracts.ActionInformation, false},
}

// actionOrder fixes the emission order of produced actions.
var actionOrder = []contracts.ComplianceActionType{
	contracts.ActionBlock,
	contracts.ActionUnblock,
	contracts.ActionTransfer,
	contracts.ActionDocument,
	contracts.ActionInformation,
	contracts.ActionUnknownType,
}

// instrumentTerms lists the legal instrument names worth flagging, in
// report order.
var instrumentTerms = []string{
	"oficio",
	"resolucion",
	"sentencia",
	"acuerdo",
	"requerimiento",
	"citatorio",
	"circular",
}

var (
	clabePattern   = regexp.MustCompile(`\b[0-9]{18}\b`)
	accountPattern = regexp.MustCompile(`\b[0-9]{10,16}\b`)
	amountPattern  = regexp.MustCompile(`\$ ?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	pesosPattern   = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]{1,2})?) (?:pesos|mxn|m\.n\.)`)
)

// KeywordDirectiveClassifier is the default rule classifier. One action
// per directive type comes out; a strong phrase match scores 90,
// supporting vocabulary 70. Text that names an account without any
// recognizable directive yields a single low-confidence Unknown action.
type KeywordDirectiveClassifier struct{}

// NewKeywordDirectiveClassifier returns the default classifier.
func NewKeywordDirectiveClassifier() *KeywordDirectiveClassifier {
	return &KeywordDirectiveClassifier{}
}

// DetectInstruments reports the instrument names appearing in text.
func (*KeywordDirectiveClassifier) DetectInstruments(_ context.Context, text string) ([]string, error) {
	corpus := foldDirectiveText(text)
	var found []string
	for _, term := range instrumentTerms {
		if containsPhrase(corpus, term) {
			found = append(found, term)
		}
	}
	return found, nil
}

// ClassifyDirectives matches the directive vocabulary against text and
// attaches the account, CLABE and amount references it finds.
func (*KeywordDirectiveClassifier) ClassifyDirectives(_ context.Context, text string, exp contracts.Expediente) ([]contracts.ComplianceAction, error) {
	corpus := foldDirectiveText(text)
	if strings.TrimSpace(corpus) == "" {
		return nil, nil
	}

	matched := make(map[contracts.ComplianceActionType]int)
	for _, rule := range directiveRules {
		if !containsPhrase(corpus, rule.phrase) {
			continue
		}
		conf := weakConfidence
		if rule.strong {
			conf = strongConfidence
		}
		if conf > matched[rule.action] {
			matched[rule.action] = conf
		}
	}

	clabe := clabePattern.FindString(corpus)
	account := accountPattern.FindString(corpus)
	amount := findAmount(corpus)

	if len(matched) == 0 {
		if clabe == "" && account == "" {
			return nil, nil
		}
		matched[contracts.ActionUnknownType] = unknownConfidence
	}

	actions := make([]contracts.ComplianceAction, 0, len(matched))
	for _, at := range actionOrder {
		conf, ok := matched[at]
		if !ok {
			continue
		}
		a := contracts.ComplianceAction{
			ActionType:       at,
			Confidence:       conf,
			ExpedienteOrigen: exp.NumeroExpediente,
			OficioOrigen:     exp.NumeroOficio,
		}
		if account != "" || clabe != "" {
			a.AccountNumber = account
			if a.AccountNumber == "" {
				a.AccountNumber = clabe
			}
			if clabe != "" {
				a.Cuenta = &contracts.Cuenta{Numero: a.AccountNumber, Clabe: clabe}
			}
		}
		switch at {
		case contracts.ActionBlock, contracts.ActionUnblock, contracts.ActionTransfer:
			a.Amount = amount
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func findAmount(corpus string) string {
	m := amountPattern.FindStringSubmatch(corpus)
	if m == nil {
		m = pesosPattern.FindStringSubmatch(corpus)
	}
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], ",", "")
}

// containsPhrase reports a whole-word occurrence of phrase in corpus, so
// "bloqueo" never matches inside "desbloqueo".
func containsPhrase(corpus, phrase string) bool {
	for from := 0; ; {
		i := strings.Index(corpus[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(corpus[start-1])) &&
			(end == len(corpus) || !isWordByte(corpus[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func foldDirectiveText(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
