package fieldmatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// BusinessCalendar is the deadline math needed for derived dates.
type BusinessCalendar interface {
	AddBusinessDays(start time.Time, days int) time.Time
}

// DeriveDates fills expediente dates the sources did not state outright:
// FechaRecepcion falls back to the published date, and the estimated
// conclusion is the reception date plus the plazo in business days.
// Fields already set are left alone.
func DeriveDates(exp *contracts.Expediente, additional map[string]string, cal BusinessCalendar) {
	if exp.FechaRecepcion.IsZero() {
		if t, ok := ParseFecha(additional["FechaPublicacion"]); ok {
			exp.FechaRecepcion = t
		}
	}
	if !exp.FechaEstimadaConclusion.IsZero() || exp.FechaRecepcion.IsZero() || cal == nil {
		return
	}
	days, err := strconv.Atoi(strings.TrimSpace(additional["DiasPlazo"]))
	if err != nil || days <= 0 {
		return
	}
	exp.FechaEstimadaConclusion = cal.AddBusinessDays(exp.FechaRecepcion, days)
}
