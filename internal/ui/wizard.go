package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// AskFunc asks one question. survey.AskOne satisfies it.
type AskFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// ErrCancelled is returned when the user aborts a wizard.
var ErrCancelled = errors.New("cancelled by user")

// Onboarding choices
var (
	PriceRangeOptions = []models.Option{
		{ID: "bajo", Name: "Low", Description: "Under €1,000"},
		{ID: "medio", Name: "Medium", Description: "€1,000 to €10,000"},
		{ID: "alto", Name: "High", Description: "€10,000 to €100,000"},
		{ID: "premium", Name: "Premium", Description: "Over €100,000"},
	}
	UserRoleOptions = []models.Option{
		{ID: "comercial", Name: "Sales representative"},
		{ID: "jefe_ventas", Name: "Sales manager"},
		{ID: "emprendedor", Name: "Entrepreneur"},
		{ID: "consultor", Name: "Consultant"},
		{ID: "otro", Name: "Other"},
	}
	salesTypeOptions = []models.Option{
		{ID: string(models.SalesTypeB2B), Name: "B2B", Description: "Selling to businesses"},
		{ID: string(models.SalesTypeB2C), Name: "B2C", Description: "Selling to consumers"},
	}
	productServiceOptions = []models.Option{
		{ID: string(models.ProductServiceProduct), Name: "Product"},
		{ID: string(models.ProductServiceService), Name: "Service"},
	}
)

// Wizard asks the interactive setup questions.
type Wizard struct {
	ask AskFunc
}

// NewWizard creates a Wizard. A nil ask uses survey.AskOne.
func NewWizard(ask AskFunc) *Wizard {
	if ask == nil {
		ask = survey.AskOne
	}
	return &Wizard{ask: ask}
}

func optionLabel(o models.Option) string {
	if o.Description == "" {
		return o.Name
	}
	return o.Name + " - " + o.Description
}

func (w *Wizard) run(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
	err := w.ask(p, response, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrCancelled
	}
	return err
}

// choose shows a select over options and returns the chosen ID.
func (w *Wizard) choose(message string, options []models.Option) (string, error) {
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = optionLabel(o)
	}
	var picked string
	if err := w.run(&survey.Select{Message: message, Options: labels}, &picked, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	for i, l := range labels {
		if l == picked {
			return options[i].ID, nil
		}
	}
	return "", fmt.Errorf("unknown choice %q", picked)
}

// Input asks for free text. Required answers may not be blank.
func (w *Wizard) Input(message, help string, required bool) (string, error) {
	var answer string
	var opts []survey.AskOpt
	if required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}
	if err := w.run(&survey.Input{Message: message, Help: help}, &answer, opts...); err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Simulation collects a simulation configuration. Sectors come from sectors.list.
func (w *Wizard) Simulation(sectors []models.Sector) (models.SimulationConfig, error) {
	var cfg models.SimulationConfig
	var err error
	pick := func(dst *string, message string, options []models.Option) {
		if err == nil {
			*dst, err = w.choose(message, options)
		}
	}

	var simType, objective, lead, avatar, language, salesType, productService string
	pick(&simType, "Simulation type:", models.SimulationTypeOptions)
	pick(&objective, "What do you want to practice?", models.ObjectiveOptions)
	pick(&lead, "Lead temperature:", models.LeadTemperatureOptions)
	pick(&salesType, "Sales type:", salesTypeOptions)
	pick(&productService, "Are you selling a product or a service?", productServiceOptions)

	sectorOptions := make([]models.Option, 0, len(sectors)+1)
	hasOther := false
	for _, s := range sectors {
		sectorOptions = append(sectorOptions, models.Option{ID: s.Code, Name: s.Name})
		hasOther = hasOther || s.Code == models.SectorOther
	}
	if !hasOther {
		sectorOptions = append(sectorOptions, models.Option{ID: models.SectorOther, Name: "Other"})
	}
	pick(&cfg.SectorCode, "Sector:", sectorOptions)
	if err == nil && cfg.SectorCode == models.SectorOther {
		cfg.CustomSector, err = w.Input("Sector name:", "Describe the sector you sell in", true)
	}

	pick(&avatar, "Avatar:", models.AvatarOptions)
	pick(&language, "Conversation language:", models.LanguageOptions)
	if err == nil {
		cfg.ConversationName, err = w.Input("Conversation name (optional):", "", false)
	}
	if err == nil {
		cfg.CustomScenario, err = w.Input("Custom scenario (optional):", "Anything the avatar should know about the situation", false)
	}
	if err != nil {
		return models.SimulationConfig{}, err
	}

	cfg.SimulationType = models.SimulationType(simType)
	cfg.Objective = models.Objective(objective)
	cfg.LeadTemperature = models.LeadTemperature(lead)
	cfg.AvatarGender = models.AvatarGender(avatar)
	cfg.Language = models.Language(language)
	cfg.SalesType = models.SalesType(salesType)
	cfg.ProductService = models.ProductService(productService)
	return cfg, cfg.Validate()
}

// Onboarding runs the five onboarding steps.
func (w *Wizard) Onboarding() (models.OnboardingProfile, error) {
	var p models.OnboardingProfile
	steps := []func() error{
		func() (err error) {
			p.SalesType, err = w.choose(stepTitle(1, "What kind of sales do you do?"), salesTypeOptions)
			return
		},
		func() (err error) {
			p.ProductService, err = w.Input(stepTitle(2, "What do you sell?"), "For example: CRM software, insurance, consulting", true)
			return
		},
		func() (err error) {
			p.PriceRange, err = w.choose(stepTitle(3, "Typical price range:"), PriceRangeOptions)
			return
		},
		func() (err error) {
			p.UserRole, err = w.choose(stepTitle(4, "Your role:"), UserRoleOptions)
			return
		},
		func() (err error) {
			p.TargetClient, err = w.Input(stepTitle(5, "Who is your target client?"), "For example: SMB owners, HR managers", true)
			return
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			return models.OnboardingProfile{}, err
		}
		if !p.CanContinue(i + 1) {
			return models.OnboardingProfile{}, fmt.Errorf("step %d: answer required", i+1)
		}
	}
	return p, p.Validate()
}

func stepTitle(step int, question string) string {
	return fmt.Sprintf("[%d/%d] %s", step, models.OnboardingSteps, question)
}

// Credentials asks for whichever of email and password are missing.
func (w *Wizard) Credentials(email, password string) (string, string, error) {
	if email == "" {
		var err error
		if email, err = w.Input("Email:", "", true); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if err := w.run(&survey.Password{Message: "Password:"}, &password, survey.WithValidator(survey.Required)); err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

// Confirm asks a yes/no question.
func (w *Wizard) Confirm(message string, def bool) (bool, error) {
	answer := def
	if err := w.run(&survey.Confirm{Message: message, Default: def}, &answer); err != nil {
		return false, err
	}
	return answer, nil
}
