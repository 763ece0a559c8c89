package extraction

import (
	"strings"
	"testing"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

func TestSafeNameComposition(t *testing.T) {
	name := SafeNamer{}.SafeName("oficio marzo.pdf",
		contracts.ClassificationResult{Level1: contracts.LabelAseguramiento, Level2: "Cuentas"},
		contracts.ExtractedFields{Expediente: "A/AS1-2025-001"})

	if name != "Aseguramiento_Cuentas_AAS12025001_oficio_marzo.pdf" {
		t.Fatalf("SafeName() = %q", name)
	}
}

func TestSafeNameWithoutLevel2OrExpediente(t *testing.T) {
	name := SafeNamer{}.SafeName("oficio.xml",
		contracts.ClassificationResult{Level1: contracts.LabelInformacion},
		contracts.ExtractedFields{})

	if name != "Informacion_oficio.xml" {
		t.Fatalf("SafeName() = %q", name)
	}
}

func TestSafeNameStripsForbiddenCharacters(t *testing.T) {
	name := SafeNamer{}.SafeName(`of:i*cio <final>?.pdf`,
		contracts.ClassificationResult{Level1: contracts.LabelDesembargo},
		contracts.ExtractedFields{})

	if strings.ContainsAny(name, `<>:"/\|?*`) {
		t.Fatalf("SafeName() = %q still carries forbidden characters", name)
	}
	if !strings.HasSuffix(name, ".pdf") {
		t.Fatalf("SafeName() = %q lost its extension", name)
	}
}

func TestSafeNameClampsLength(t *testing.T) {
	long := strings.Repeat("expediente-judicial-", 20) + ".docx"
	name := SafeNamer{MaxLength: 60}.SafeName(long,
		contracts.ClassificationResult{Level1: contracts.LabelDocumentacion},
		contracts.ExtractedFields{Expediente: "D/DOC-2025-33"})

	if len(name) > 60 {
		t.Fatalf("len(SafeName()) = %d, want <= 60", len(name))
	}
	if !strings.HasSuffix(name, ".docx") {
		t.Fatalf("SafeName() = %q lost its extension", name)
	}
	if !strings.HasPrefix(name, "Documentacion_") {
		t.Fatalf("SafeName() = %q lost the classification prefix", name)
	}
}

func TestSafeNameEmptyOriginal(t *testing.T) {
	name := SafeNamer{}.SafeName("",
		contracts.ClassificationResult{Level1: contracts.LabelTransferencia},
		contracts.ExtractedFields{})

	if name != "Transferencia" {
		t.Fatalf("SafeName() = %q", name)
	}
}
