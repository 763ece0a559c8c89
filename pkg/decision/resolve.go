package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/meridian-compliance/oficios/pkg/audit"
	"github.com/meridian-compliance/oficios/pkg/contracts"
	"github.com/meridian-compliance/oficios/pkg/outcome"
)

// IdentityResolver canonicalizes one party and collapses duplicate
// parties. ResolveIdentity returns the enriched persona; Deduplicate
// reduces a resolved list to distinct identities.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, p contracts.Persona) (contracts.Persona, error)
	Deduplicate(personas []contracts.Persona) []contracts.Persona
}

// ResolvePersonIdentities resolves every persona on the list and
// deduplicates the result. A persona that fails to resolve is logged and
// dropped; the batch continues. Cancellation mid-list keeps the personas
// resolved so far.
func (s *Stage) ResolvePersonIdentities(ctx context.Context, fileID string, personas []contracts.Persona) outcome.Outcome[[]contracts.Persona] {
	if out, done := outcome.Guard[[]contracts.Persona](ctx); done {
		return out
	}
	ctx, _ = audit.EnsureCorrelationID(ctx)
	return outcome.Capture(func() outcome.Outcome[[]contracts.Persona] {
		return s.resolvePersonas(ctx, fileID, personas)
	})
}

func (s *Stage) resolvePersonas(ctx context.Context, fileID string, personas []contracts.Persona) outcome.Outcome[[]contracts.Persona] {
	n := len(personas)
	resolved := make([]contracts.Persona, 0, n)
	failed := 0
	for _, p := range personas {
		if ctx.Err() != nil {
			break
		}
		rp, err := s.resolver.ResolveIdentity(ctx, p)
		if err != nil {
			if outcome.FromErr[struct{}](err).IsCancelled() {
				break
			}
			failed++
			s.log.Warn("persona resolution failed",
				"file_id", fileID,
				"parte_id", p.ParteID,
				"error", err)
			continue
		}
		resolved = append(resolved, rp)
	}

	partial := ctx.Err() != nil && len(resolved)+failed < n
	if partial && len(resolved) == 0 {
		return outcome.Cancelled[[]contracts.Persona]()
	}
	var distinct []contracts.Persona
	if partial {
		distinct = dedupeOrKeep(s.resolver, resolved)
	} else {
		distinct = s.resolver.Deduplicate(resolved)
	}

	s.recorder.Record(ctx, audit.ActionClassification, audit.StageDecisionLogic, fileID, true,
		audit.Details(map[string]any{
			"step":     "resolve_personas",
			"total":    n,
			"resolved": len(resolved),
			"failed":   failed,
			"distinct": len(distinct),
			"partial":  partial,
		}), "")

	if partial {
		warning := fmt.Sprintf("identity resolution cancelled after %d/%d personas", len(resolved), n)
		return outcome.Partial(distinct, len(resolved), n, warning)
	}
	return outcome.Success(distinct)
}

// dedupeOrKeep shields the partial result: a panicking Deduplicate still
// yields the undeduplicated list.
func dedupeOrKeep(r IdentityResolver, personas []contracts.Persona) (out []contracts.Persona) {
	out = personas
	defer func() {
		_ = recover()
	}()
	return r.Deduplicate(personas)
}

// rfcPattern matches a canonical RFC: three issuer letters for a moral
// person or four for a physical one, a six digit date block and the
// homoclave.
var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}$`)

// NormalizingResolver is the default IdentityResolver. It canonicalizes
// names and RFC spellings locally; no registry lookup is involved.
type NormalizingResolver struct{}

// ResolveIdentity trims the party's fields, canonicalizes the RFC, derives
// the persona kind from the RFC length when unset and expands the variant
// set with the conventional spellings.
func (NormalizingResolver) ResolveIdentity(_ context.Context, p contracts.Persona) (contracts.Persona, error) {
	p.Nombre = collapseSpaces(p.Nombre)
	p.Paterno = collapseSpaces(p.Paterno)
	p.Materno = collapseSpaces(p.Materno)
	p.Caracter = strings.TrimSpace(p.Caracter)
	p.Relacion = strings.TrimSpace(p.Relacion)
	p.Domicilio = strings.TrimSpace(p.Domicilio)

	observed := p.RfcVariants
	raw := strings.TrimSpace(p.Rfc)
	canonical := NormalizeRfc(raw)
	if canonical != "" {
		p.Rfc = canonical
		p.RfcVariants = RfcSpellings(canonical)
	} else {
		p.Rfc = raw
		p.RfcVariants = nil
	}
	for _, v := range observed {
		p.RfcVariants = appendUnique(p.RfcVariants, strings.TrimSpace(v))
	}

	if p.PersonaTipo == "" && canonical != "" {
		switch len(canonical) {
		case 12:
			p.PersonaTipo = contracts.PersonaMoral
		case 13:
			p.PersonaTipo = contracts.PersonaFisica
		}
	}

	var vs contracts.ValidationState
	vs.Require(p.Nombre != "", "Nombre")
	vs.WarnIf(raw != "" && canonical == "", "RfcFormat")
	vs.WarnIf(raw == "" && len(p.RfcVariants) == 0, "RfcMissing")
	if p.PersonaTipo == contracts.PersonaFisica {
		vs.WarnIf(p.Paterno == "", "Paterno")
	}
	p.Validation = vs
	return p, nil
}

// Deduplicate collapses personas that share an RFC. Two personas with no
// RFC at all fall back to comparing the name triplet. The first occurrence
// wins; later duplicates fill its blank fields and extend its variant set.
func (NormalizingResolver) Deduplicate(personas []contracts.Persona) []contracts.Persona {
	out := make([]contracts.Persona, 0, len(personas))
	for _, p := range personas {
		merged := false
		for i := range out {
			if samePersona(out[i], p) {
				out[i] = mergePersona(out[i], p)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, p)
		}
	}
	return out
}

// samePersona reports whether a and b are the same party: their normalized
// RFC sets intersect, or neither carries any RFC and the name triplets
// match ignoring case and accents. A persona with an RFC never matches one
// without.
func samePersona(a, b contracts.Persona) bool {
	ra, rb := normalizedRfcSet(a), normalizedRfcSet(b)
	if len(ra) > 0 || len(rb) > 0 {
		for rfc := range ra {
			if _, ok := rb[rfc]; ok {
				return true
			}
		}
		return false
	}
	if a.Nombre == "" || b.Nombre == "" {
		return false
	}
	return foldName(a.Nombre) == foldName(b.Nombre) &&
		foldName(a.Paterno) == foldName(b.Paterno) &&
		foldName(a.Materno) == foldName(b.Materno)
}

func normalizedRfcSet(p contracts.Persona) map[string]struct{} {
	set := make(map[string]struct{}, len(p.RfcVariants)+1)
	if rfc := NormalizeRfc(p.Rfc); rfc != "" {
		set[rfc] = struct{}{}
	}
	for _, v := range p.RfcVariants {
		if rfc := NormalizeRfc(v); rfc != "" {
			set[rfc] = struct{}{}
		}
	}
	return set
}

// mergePersona folds b into a. Scalars keep a's value unless blank, the
// variant set unions in observation order and Complementarios merge with
// a's entries winning.
func mergePersona(a, b contracts.Persona) contracts.Persona {
	if a.Nombre == "" {
		a.Nombre = b.Nombre
	}
	if a.Paterno == "" {
		a.Paterno = b.Paterno
	}
	if a.Materno == "" {
		a.Materno = b.Materno
	}
	if a.Rfc == "" {
		a.Rfc = b.Rfc
	}
	if a.PersonaTipo == "" {
		a.PersonaTipo = b.PersonaTipo
	}
	if a.Caracter == "" {
		a.Caracter = b.Caracter
	}
	if a.Relacion == "" {
		a.Relacion = b.Relacion
	}
	if a.Domicilio == "" {
		a.Domicilio = b.Domicilio
	}
	for _, v := range b.RfcVariants {
		a.RfcVariants = appendUnique(a.RfcVariants, v)
	}
	if len(b.Complementarios) > 0 {
		merged := make(map[string]string, len(a.Complementarios)+len(b.Complementarios))
		for k, v := range a.Complementarios {
			merged[k] = v
		}
		for k, v := range b.Complementarios {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		a.Complementarios = merged
	}
	return a
}

// NormalizeRfc uppercases s and strips separator characters. Anything that
// does not match the RFC shape afterwards comes back empty.
func NormalizeRfc(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch r {
		case ' ', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	c := b.String()
	if !rfcPattern.MatchString(c) {
		return ""
	}
	return c
}

// RfcSpellings returns the three conventional spellings of a canonical
// RFC: compact, hyphenated and spaced. The separators go after the issuer
// letters and after the date block.
func RfcSpellings(canonical string) []string {
	split := len(canonical) - 9
	letters, rest := canonical[:split], canonical[split:]
	date, homoclave := rest[:6], rest[6:]
	return []string{
		canonical,
		letters + "-" + date + "-" + homoclave,
		letters + " " + date + " " + homoclave,
	}
}

// foldMarks strips combining marks: NFD decomposition, drop the marks,
// recompose.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldName(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(collapseSpaces(folded))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
