package models

import (
	"errors"
	"time"
)

// Sector is a business sector offered by sectors.list.
type Sector struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RubricScores are the average scores per sales methodology.
type RubricScores struct {
	SPIN       float64 `json:"spin"`
	BANT       float64 `json:"bant"`
	Challenger float64 `json:"challenger"`
	General    float64 `json:"general"`
}

// FeedbackDistribution counts feedback items by kind.
type FeedbackDistribution struct {
	Strengths  int `json:"strengths"`
	Average    int `json:"average"`
	Weaknesses int `json:"weaknesses"`
}

// SessionSummary is a past simulation listed on the dashboard.
type SessionSummary struct {
	ConversationID int64     `json:"conversationId"`
	Name           string    `json:"name"`
	Score          float64   `json:"score"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DashboardStats is the output of dashboard.stats.
type DashboardStats struct {
	TotalSimulations     int                  `json:"totalSimulations"`
	AverageScore         float64              `json:"averageScore"`
	ScoresByRubric       RubricScores         `json:"scoresByRubric"`
	FeedbackDistribution FeedbackDistribution `json:"feedbackDistribution"`
	RecentSessions       []SessionSummary     `json:"recentSessions,omitempty"`
}

// User is the authenticated account.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Credentials bind an access token to the user it was issued for.
type Credentials struct {
	AccessToken string    `json:"access_token"`
	User        User      `json:"user"`
	SavedAt     time.Time `json:"saved_at"`
}

// LoginRequest is the body of /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Onboarding errors
var (
	ErrMissingOnboardingSalesType      = errors.New("sales type is required")
	ErrMissingOnboardingProductService = errors.New("product/service is required")
	ErrMissingPriceRange               = errors.New("price range is required")
	ErrMissingUserRole                 = errors.New("user role is required")
	ErrMissingTargetClient             = errors.New("target client is required")
)

// OnboardingSteps is the number of steps of the onboarding wizard.
const OnboardingSteps = 5

// OnboardingProfile is collected once after registration.
type OnboardingProfile struct {
	SalesType      string `json:"sales_type"`
	ProductService string `json:"product_service"`
	PriceRange     string `json:"price_range"`
	UserRole       string `json:"user_role"`
	TargetClient   string `json:"target_client"`
}

// CanContinue reports whether the given 1-based wizard step has its answer.
func (p *OnboardingProfile) CanContinue(step int) bool {
	switch step {
	case 1:
		return p.SalesType != ""
	case 2:
		return p.ProductService != ""
	case 3:
		return p.PriceRange != ""
	case 4:
		return p.UserRole != ""
	case 5:
		return p.TargetClient != ""
	default:
		return false
	}
}

// Validate checks that every step has been answered.
func (p *OnboardingProfile) Validate() error {
	checks := []error{
		ErrMissingOnboardingSalesType,
		ErrMissingOnboardingProductService,
		ErrMissingPriceRange,
		ErrMissingUserRole,
		ErrMissingTargetClient,
	}
	for step := 1; step <= OnboardingSteps; step++ {
		if !p.CanContinue(step) {
			return checks[step-1]
		}
	}
	return nil
}
