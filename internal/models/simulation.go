package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// SimulationType is the channel the simulated sales conversation takes place on.
type SimulationType string

const (
	SimulationTypeCall     SimulationType = "llamada"
	SimulationTypeVideo    SimulationType = "zoom"
	SimulationTypeInPerson SimulationType = "presencial"
)

// Objective is the skill the user wants to practice.
type Objective string

const (
	ObjectiveDiscoverNeeds    Objective = "identificar_necesidades"
	ObjectiveHandleObjections Objective = "manejar_objecciones"
	ObjectiveConsultiveClose  Objective = "cierre_consultivo"
	ObjectiveFullSale         Objective = "venta_completa"
)

// LeadTemperature describes how interested the simulated client is.
type LeadTemperature string

const (
	LeadCold LeadTemperature = "frio"
	LeadWarm LeadTemperature = "tibio"
	LeadHot  LeadTemperature = "caliente"
)

// SalesType distinguishes business and consumer sales.
type SalesType string

const (
	SalesTypeB2B SalesType = "B2B"
	SalesTypeB2C SalesType = "B2C"
)

// ProductService distinguishes selling a product from selling a service.
type ProductService string

const (
	ProductServiceProduct ProductService = "product"
	ProductServiceService ProductService = "service"
)

// AvatarGender selects the avatar persona.
type AvatarGender string

const (
	AvatarFemale AvatarGender = "female"
	AvatarMale   AvatarGender = "male"
)

// Language is the language the conversation is held in.
type Language string

const (
	LanguageSpanish Language = "es"
	LanguageEnglish Language = "en"
)

// SectorOther is the sector code that requires a custom sector name.
const SectorOther = "OTHER"

// Support document limits
const (
	// MaxDocumentSize is the maximum size of a single support document in bytes.
	MaxDocumentSize = 10 * 1024 * 1024
	// MaxConversationNameLength bounds the optional conversation name.
	MaxConversationNameLength = 120
	// MaxCustomScenarioLength bounds the optional free-text scenario.
	MaxCustomScenarioLength = 2000
)

var allowedDocumentExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".doc":  true,
	".docx": true,
}

// Error variables for required simulation fields.
var (
	ErrMissingSimulationType  = errors.New("simulation type is required")
	ErrMissingObjective       = errors.New("objective is required")
	ErrMissingLeadTemperature = errors.New("lead temperature is required")
	ErrMissingSalesType       = errors.New("sales type is required")
	ErrMissingProductService  = errors.New("product/service category is required")
	ErrMissingSector          = errors.New("sector is required")
	ErrMissingCustomSector    = errors.New("custom sector name is required when sector is OTHER")
	ErrMissingAvatar          = errors.New("avatar choice is required")
	ErrMissingLanguage        = errors.New("language is required")
	ErrInvalidValue           = errors.New("invalid value")
	ErrFieldTooLong           = errors.New("field exceeds maximum length")
	ErrUnsupportedDocument    = errors.New("unsupported document type (PDF, TXT, DOC, DOCX only)")
	ErrDocumentTooLarge       = errors.New("document exceeds 10MB")
)

// FieldError reports a single invalid field.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// ValidationError collects every invalid field of a configuration.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid simulation configuration: " + strings.Join(parts, "; ")
}

// Unwrap exposes the field errors to errors.Is.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields))
	for _, f := range e.Fields {
		errs = append(errs, f)
	}
	return errs
}

// Missing returns the names of the fields that failed validation.
func (e *ValidationError) Missing() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// SimulationConfig is the user-authored set of parameters for one conversation.
// It is not mutated after submission.
type SimulationConfig struct {
	ConversationName string          `json:"conversationName,omitempty" yaml:"conversation_name"`
	SimulationType   SimulationType  `json:"simulationType" yaml:"simulation_type"`
	Objective        Objective       `json:"objective" yaml:"objective"`
	LeadTemperature  LeadTemperature `json:"leadTemperature" yaml:"lead_temperature"`
	AvatarGender     AvatarGender    `json:"avatarGender" yaml:"avatar_gender"`
	Language         Language        `json:"language" yaml:"language"`
	SalesType        SalesType       `json:"salesType" yaml:"sales_type"`
	ProductService   ProductService  `json:"productService" yaml:"product_service"`
	SectorCode       string          `json:"sectorCode" yaml:"sector_code"`
	CustomSector     string          `json:"customSector,omitempty" yaml:"custom_sector"`
	CustomScenario   string          `json:"customScenario,omitempty" yaml:"custom_scenario"`
	SupportDocuments []string        `json:"supportDocuments,omitempty" yaml:"support_documents"`
}

// Validate checks every required field without any I/O. The returned error, if not nil,
// is a *ValidationError listing all offending fields.
func (c *SimulationConfig) Validate() error {
	var fields []FieldError
	add := func(field string, err error) {
		fields = append(fields, FieldError{Field: field, Err: err})
	}

	switch {
	case c.SimulationType == "":
		add("simulationType", ErrMissingSimulationType)
	case !IsValidSimulationType(c.SimulationType):
		add("simulationType", ErrInvalidValue)
	}
	switch {
	case c.Objective == "":
		add("objective", ErrMissingObjective)
	case !IsValidObjective(c.Objective):
		add("objective", ErrInvalidValue)
	}
	switch {
	case c.LeadTemperature == "":
		add("leadTemperature", ErrMissingLeadTemperature)
	case !IsValidLeadTemperature(c.LeadTemperature):
		add("leadTemperature", ErrInvalidValue)
	}
	switch c.SalesType {
	case "":
		add("salesType", ErrMissingSalesType)
	case SalesTypeB2B, SalesTypeB2C:
	default:
		add("salesType", ErrInvalidValue)
	}
	switch c.ProductService {
	case "":
		add("productService", ErrMissingProductService)
	case ProductServiceProduct, ProductServiceService:
	default:
		add("productService", ErrInvalidValue)
	}
	if strings.TrimSpace(c.SectorCode) == "" {
		add("sectorCode", ErrMissingSector)
	} else if c.SectorCode == SectorOther && strings.TrimSpace(c.CustomSector) == "" {
		add("customSector", ErrMissingCustomSector)
	}
	switch c.AvatarGender {
	case "":
		add("avatarGender", ErrMissingAvatar)
	case AvatarFemale, AvatarMale:
	default:
		add("avatarGender", ErrInvalidValue)
	}
	switch c.Language {
	case "":
		add("language", ErrMissingLanguage)
	case LanguageSpanish, LanguageEnglish:
	default:
		add("language", ErrInvalidValue)
	}
	if len(c.ConversationName) > MaxConversationNameLength {
		add("conversationName", ErrFieldTooLong)
	}
	if len(c.CustomScenario) > MaxCustomScenarioLength {
		add("customScenario", ErrFieldTooLong)
	}
	for _, doc := range c.SupportDocuments {
		// sizes need the file system and are checked by the caller
		if err := ValidateDocument(doc, 0); err != nil {
			add("supportDocuments", err)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// IsValidSimulationType checks if the given simulation type is supported.
func IsValidSimulationType(t SimulationType) bool {
	switch t {
	case SimulationTypeCall, SimulationTypeVideo, SimulationTypeInPerson:
		return true
	default:
		return false
	}
}

// IsValidObjective checks if the given objective is supported.
func IsValidObjective(o Objective) bool {
	switch o {
	case ObjectiveDiscoverNeeds, ObjectiveHandleObjections, ObjectiveConsultiveClose, ObjectiveFullSale:
		return true
	default:
		return false
	}
}

// IsValidLeadTemperature checks if the given lead temperature is supported.
func IsValidLeadTemperature(l LeadTemperature) bool {
	switch l {
	case LeadCold, LeadWarm, LeadHot:
		return true
	default:
		return false
	}
}

// ValidateDocument checks a support document by name and size.
func ValidateDocument(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedDocumentExtensions[ext] {
		return fmt.Errorf("%s: %w", name, ErrUnsupportedDocument)
	}
	if size > MaxDocumentSize {
		return fmt.Errorf("%s: %w", name, ErrDocumentTooLarge)
	}
	return nil
}

// Option is a labelled choice offered by the setup wizard.
type Option struct {
	ID          string
	Name        string
	Description string
}

// SimulationTypeOptions lists the supported simulation types.
var SimulationTypeOptions = []Option{
	{ID: string(SimulationTypeCall), Name: "Phone call", Description: "Sales call over the phone"},
	{ID: string(SimulationTypeVideo), Name: "Video conference", Description: "Virtual sales meeting"},
	{ID: string(SimulationTypeInPerson), Name: "In person", Description: "Face to face meeting"},
}

// ObjectiveOptions lists the supported objectives.
var ObjectiveOptions = []Option{
	{ID: string(ObjectiveDiscoverNeeds), Name: "Discover needs", Description: "Practice uncovering pain points"},
	{ID: string(ObjectiveHandleObjections), Name: "Handle objections", Description: "Respond to common objections"},
	{ID: string(ObjectiveConsultiveClose), Name: "Consultative close", Description: "Master closing techniques"},
	{ID: string(ObjectiveFullSale), Name: "Full sale", Description: "The sales process end to end"},
}

// LeadTemperatureOptions lists the supported lead temperatures.
var LeadTemperatureOptions = []Option{
	{ID: string(LeadCold), Name: "Cold lead", Description: "No prior interest"},
	{ID: string(LeadWarm), Name: "Warm lead", Description: "Moderate interest"},
	{ID: string(LeadHot), Name: "Hot lead", Description: "Very interested"},
}

// AvatarOptions lists the available avatars.
var AvatarOptions = []Option{
	{ID: string(AvatarFemale), Name: "Female avatar", Description: "Professional female persona"},
	{ID: string(AvatarMale), Name: "Male avatar", Description: "Professional male persona"},
}

// LanguageOptions lists the supported conversation languages.
var LanguageOptions = []Option{
	{ID: string(LanguageSpanish), Name: "Castellano", Description: "Simulación en español"},
	{ID: string(LanguageEnglish), Name: "English", Description: "Simulation in English"},
}
