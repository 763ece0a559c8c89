// Package fieldmatch reconciles field observations from redundant
// extraction sources into a single agreed value per field, flags
// conflicts, derives dates the sources omit, and aggregates the
// completeness checks that gate export.
package fieldmatch

import (
	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// FieldDefinition names an expected field and how to normalize its
// observations.
type FieldDefinition struct {
	Name      string
	Normalize Rule
}

// DefaultFieldSet covers the expediente fields every oficio carries.
func DefaultFieldSet() []FieldDefinition {
	return []FieldDefinition{
		{Name: "Expediente", Normalize: Upper},
		{Name: "NumeroOficio", Normalize: Upper},
		{Name: "Causa", Normalize: Basic},
		{Name: "AccionSolicitada", Normalize: Basic},
		{Name: "AreaDescripcion", Normalize: Basic},
		{Name: "FundamentoLegal", Normalize: Basic},
		{Name: "MedioEnvio", Normalize: Basic},
	}
}

// Result is the full reconciliation output. Matched carries every
// observed field; AdditionalFields holds the agreed values of fields
// outside the definition set, with their conflicts listed separately.
type Result struct {
	Matched                  contracts.MatchedFields
	AdditionalFields         map[string]string
	AdditionalFieldConflicts []string
}

// Matcher reconciles observations against a field definition set.
type Matcher struct {
	defs []FieldDefinition
}

// NewMatcher creates a matcher. With no definitions the default field set
// is used.
func NewMatcher(defs ...FieldDefinition) *Matcher {
	if len(defs) == 0 {
		defs = DefaultFieldSet()
	}
	return &Matcher{defs: defs}
}

// Match groups observations by field, normalizes each group with the
// field's rule, and picks the majority value. A field whose normalized
// observations disagree is conflicting; a defined field with no
// observations is missing. OverallAgreement is the mean per-field
// agreement across observed fields.
func (m *Matcher) Match(observations []contracts.FieldValue) Result {
	byField := make(map[string][]contracts.FieldValue)
	var order []string
	for _, obs := range observations {
		if _, seen := byField[obs.Name]; !seen {
			order = append(order, obs.Name)
		}
		byField[obs.Name] = append(byField[obs.Name], obs)
	}

	defined := make(map[string]bool, len(m.defs))
	result := Result{
		Matched: contracts.MatchedFields{
			Fields: make(map[string]contracts.FieldMatch),
		},
		AdditionalFields: make(map[string]string),
	}

	for _, def := range m.defs {
		defined[def.Name] = true
		fm, ok := reconcile(byField[def.Name], def.Normalize)
		if !ok {
			result.Matched.MissingFields = append(result.Matched.MissingFields, def.Name)
			continue
		}
		result.Matched.Fields[def.Name] = fm
		if fm.HasConflict {
			result.Matched.ConflictingFields = append(result.Matched.ConflictingFields, def.Name)
		}
	}

	for _, name := range order {
		if defined[name] {
			continue
		}
		fm, ok := reconcile(byField[name], ruleForName(name))
		if !ok {
			continue
		}
		result.Matched.Fields[name] = fm
		result.AdditionalFields[name] = fm.MatchedValue
		if fm.HasConflict {
			result.AdditionalFieldConflicts = append(result.AdditionalFieldConflicts, name)
		}
	}

	var sum float64
	for _, fm := range result.Matched.Fields {
		sum += fm.AgreementLevel
	}
	if n := len(result.Matched.Fields); n > 0 {
		result.Matched.OverallAgreement = sum / float64(n)
	}

	return result
}

type valueGroup struct {
	value      string
	count      int
	confidence float64
	firstIndex int
	sources    []contracts.SourceType
}

// reconcile collapses one field's observations. Empty normalized values
// do not count as observations; ok is false when nothing observable
// remains. On a tie the group with the higher summed confidence wins,
// then the earlier-observed one.
func reconcile(obs []contracts.FieldValue, rule Rule) (contracts.FieldMatch, bool) {
	if rule == nil {
		rule = Basic
	}

	groups := make(map[string]*valueGroup)
	var groupOrder []string
	total := 0
	for i, o := range obs {
		v := rule(o.Value)
		if v == "" {
			continue
		}
		total++
		g, seen := groups[v]
		if !seen {
			g = &valueGroup{value: v, firstIndex: i}
			groups[v] = g
			groupOrder = append(groupOrder, v)
		}
		g.count++
		g.confidence += o.Confidence
		g.sources = append(g.sources, o.Source)
	}
	if total == 0 {
		return contracts.FieldMatch{}, false
	}

	var winner *valueGroup
	for _, v := range groupOrder {
		g := groups[v]
		if winner == nil || g.count > winner.count ||
			(g.count == winner.count && g.confidence > winner.confidence) ||
			(g.count == winner.count && g.confidence == winner.confidence && g.firstIndex < winner.firstIndex) {
			winner = g
		}
	}

	return contracts.FieldMatch{
		MatchedValue:        winner.value,
		AgreementLevel:      float64(winner.count) / float64(total),
		HasConflict:         len(groups) > 1,
		ContributingSources: dedupeSources(winner.sources),
	}, true
}

func dedupeSources(sources []contracts.SourceType) []contracts.SourceType {
	seen := make(map[contracts.SourceType]bool, len(sources))
	out := make([]contracts.SourceType, 0, len(sources))
	for _, s := range sources {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
