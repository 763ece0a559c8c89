package contracts

import "time"

// LegalSubdivisionKind is the regulatory category bucket of an expediente.
type LegalSubdivisionKind string

// Legal subdivisions. SubdivisionUnknown is the sentinel for unresolved
// records and fails export validation.
const (
	SubdivisionUnknown        LegalSubdivisionKind = "UNKNOWN"
	SubdivisionJudicial       LegalSubdivisionKind = "JUDICIAL"
	SubdivisionHacendaria     LegalSubdivisionKind = "HACENDARIA"
	SubdivisionAdministrativa LegalSubdivisionKind = "ADMINISTRATIVA"
)

// Expediente identifies a legal case file and its handling deadlines.
type Expediente struct {
	NumeroExpediente        string               `json:"numero_expediente"`
	NumeroOficio            string               `json:"numero_oficio"`
	Subdivision             LegalSubdivisionKind `json:"subdivision"`
	AreaDescripcion         string               `json:"area_descripcion,omitempty"`
	FechaRecepcion          time.Time            `json:"fecha_recepcion"`
	FechaEstimadaConclusion time.Time            `json:"fecha_estimada_conclusion,omitempty"`
	FundamentoLegal         string               `json:"fundamento_legal,omitempty"`
	MedioEnvio              string               `json:"medio_envio,omitempty"`
}

// PersonaTipo distinguishes natural from legal persons.
type PersonaTipo string

// Persona kinds.
const (
	PersonaFisica PersonaTipo = "FISICA"
	PersonaMoral  PersonaTipo = "MORAL"
)

// Persona is a party named on an expediente. RfcVariants holds every RFC
// spelling observed for the party (canonical, hyphenated, spaced); identity
// deduplication keys on this set.
type Persona struct {
	ParteID         string            `json:"parte_id"`
	Nombre          string            `json:"nombre"`
	Paterno         string            `json:"paterno,omitempty"`
	Materno         string            `json:"materno,omitempty"`
	Rfc             string            `json:"rfc,omitempty"`
	RfcVariants     []string          `json:"rfc_variants,omitempty"`
	PersonaTipo     PersonaTipo       `json:"persona_tipo"`
	Caracter        string            `json:"caracter,omitempty"`
	Relacion        string            `json:"relacion,omitempty"`
	Domicilio       string            `json:"domicilio,omitempty"`
	Complementarios map[string]string `json:"complementarios,omitempty"`
	Validation      ValidationState   `json:"validation,omitempty"`
}

// ComplianceActionType is the operational directive class extracted from
// legal text.
type ComplianceActionType string

// Compliance action types.
const (
	ActionBlock       ComplianceActionType = "BLOCK"
	ActionUnblock     ComplianceActionType = "UNBLOCK"
	ActionTransfer    ComplianceActionType = "TRANSFER"
	ActionDocument    ComplianceActionType = "DOCUMENT"
	ActionInformation ComplianceActionType = "INFORMATION"
	ActionUnknownType ComplianceActionType = "UNKNOWN"
)

// Cuenta is the optional account sub-record attached to a compliance action.
type Cuenta struct {
	Numero      string `json:"numero"`
	Clabe       string `json:"clabe,omitempty"`
	Institucion string `json:"institucion,omitempty"`
	Producto    string `json:"producto,omitempty"`
}

// ComplianceAction is one concrete directive derived from document text.
// Confidence is a 0..100 integer, matching classifier convention; field-level
// confidences elsewhere are 0..1 fractions.
type ComplianceAction struct {
	ActionType       ComplianceActionType `json:"action_type"`
	Confidence       int                  `json:"confidence"`
	AccountNumber    string               `json:"account_number,omitempty"`
	Amount           string               `json:"amount,omitempty"` // decimal string, currency implicit
	ExpedienteOrigen string               `json:"expediente_origen,omitempty"`
	OficioOrigen     string               `json:"oficio_origen,omitempty"`
	Cuenta           *Cuenta              `json:"cuenta,omitempty"`
}
