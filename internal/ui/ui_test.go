package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/models"
)

// scriptedAsk answers prompts by message prefix. Select answers name the option label
// prefix; the first matching label is chosen.
func scriptedAsk(answers map[string]string) (AskFunc, *[]string) {
	var asked []string
	return func(p survey.Prompt, response interface{}, _ ...survey.AskOpt) error {
		var msg string
		switch q := p.(type) {
		case *survey.Select:
			msg = q.Message
		case *survey.Input:
			msg = q.Message
		case *survey.Password:
			msg = q.Message
		case *survey.Confirm:
			msg = q.Message
			*(response.(*bool)) = answers[msg] == "yes"
			asked = append(asked, msg)
			return nil
		}
		asked = append(asked, msg)
		answer, ok := answers[msg]
		if !ok {
			return fmt.Errorf("unexpected prompt %q", msg)
		}
		if sel, isSelect := p.(*survey.Select); isSelect {
			for _, o := range sel.Options {
				if strings.HasPrefix(o, answer) {
					answer = o
					break
				}
			}
		}
		*(response.(*string)) = answer
		return nil
	}, &asked
}

func TestWizard_Simulation(t *testing.T) {
	ask, asked := scriptedAsk(map[string]string{
		"Simulation type:":                        "Video conference",
		"What do you want to practice?":           "Handle objections",
		"Lead temperature:":                       "Warm lead",
		"Sales type:":                             "B2B",
		"Are you selling a product or a service?": "Service",
		"Sector:":                                 "Other",
		"Sector name:":                            "  Solar panels ",
		"Avatar:":                                 "Female avatar",
		"Conversation language:":                  "English",
		"Conversation name (optional):":           "",
		"Custom scenario (optional):":             "Budget freeze",
	})
	cfg, err := NewWizard(ask).Simulation([]models.Sector{{Code: "SAAS", Name: "Software"}})
	if err != nil {
		t.Fatalf("Simulation failed: %v", err)
	}
	want := models.SimulationConfig{
		SimulationType:  models.SimulationTypeVideo,
		Objective:       models.ObjectiveHandleObjections,
		LeadTemperature: models.LeadWarm,
		SalesType:       models.SalesTypeB2B,
		ProductService:  models.ProductServiceService,
		SectorCode:      models.SectorOther,
		CustomSector:    "Solar panels",
		AvatarGender:    models.AvatarFemale,
		Language:        models.LanguageEnglish,
		CustomScenario:  "Budget freeze",
	}
	if fmt.Sprintf("%+v", cfg) != fmt.Sprintf("%+v", want) {
		t.Errorf("unexpected config\n got %+v\nwant %+v", cfg, want)
	}
	if len(*asked) != 11 {
		t.Errorf("expected 11 prompts, got %d", len(*asked))
	}
}

func TestWizard_SimulationStopsOnInterrupt(t *testing.T) {
	calls := 0
	ask := func(survey.Prompt, interface{}, ...survey.AskOpt) error {
		calls++
		return terminal.InterruptErr
	}
	if _, err := NewWizard(ask).Simulation(nil); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected the wizard to stop at the first prompt, got %d prompts", calls)
	}
}

func TestWizard_Onboarding(t *testing.T) {
	ask, asked := scriptedAsk(map[string]string{
		"[1/5] What kind of sales do you do?": "B2C",
		"[2/5] What do you sell?":             "Insurance",
		"[3/5] Typical price range:":          "Medium",
		"[4/5] Your role:":                    "Consultant",
		"[5/5] Who is your target client?":    "Families",
	})
	p, err := NewWizard(ask).Onboarding()
	if err != nil {
		t.Fatalf("Onboarding failed: %v", err)
	}
	if p.SalesType != "B2C" || p.PriceRange != "medio" || p.UserRole != "consultor" || p.TargetClient != "Families" {
		t.Errorf("unexpected profile %+v", p)
	}
	if len(*asked) != models.OnboardingSteps {
		t.Errorf("expected %d prompts, got %d", models.OnboardingSteps, len(*asked))
	}
}

func TestWizard_Credentials(t *testing.T) {
	ask, asked := scriptedAsk(map[string]string{"Password:": "secret"})
	email, pw, err := NewWizard(ask).Credentials("a@b.c", "")
	if err != nil || email != "a@b.c" || pw != "secret" {
		t.Errorf("unexpected credentials %q %q (%v)", email, pw, err)
	}
	if len(*asked) != 1 {
		t.Errorf("only the missing password should be asked, got %v", *asked)
	}
}

func TestNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(NewPrinter(&buf))
	n.OnNotify(flow.NotifyWarning, "Feedback is taking longer than expected")
	n.OnSnapshot(flow.Snapshot{State: flow.StateAwaitingEnd, Conversation: &models.Conversation{ID: 42}})
	n.OnSnapshot(flow.Snapshot{State: flow.StateAwaitingEnd, Conversation: &models.Conversation{ID: 42}})
	n.OnSnapshot(flow.Snapshot{State: flow.StateFailed, Failure: "expired"})

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Error("no escape codes may be written to a non-terminal")
	}
	if !strings.Contains(out, "! Feedback is taking longer") {
		t.Errorf("missing warning line:\n%s", out)
	}
	if strings.Count(out, "Conversation 42 in progress") != 1 {
		t.Errorf("state lines must only be printed on change:\n%s", out)
	}
	if !strings.Contains(out, "Session failed: expired") {
		t.Errorf("missing failure line:\n%s", out)
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		value, limit float64
		want         string
	}{
		{5, 10, "█████░░░░░"},
		{0, 10, "░░░░░░░░░░"},
		{12, 10, "██████████"},
		{-1, 10, "░░░░░░░░░░"},
		{3, 0, ""},
	}
	for _, tt := range tests {
		if got := bar(tt.value, tt.limit, 10); got != tt.want {
			t.Errorf("bar(%v, %v) = %q, want %q", tt.value, tt.limit, got, tt.want)
		}
	}
}

func TestFeedbackReport(t *testing.T) {
	f := &models.Feedback{
		ID:                  1,
		OverallScore:        7.5,
		ScoresByCategory:    map[string]float64{"active_listening": 8, "closing": 6},
		Strengths:           []string{"Clear value proposition"},
		AreasForImprovement: []string{"Ask more open questions"},
		TalkRatio:           &models.TalkRatio{Seller: 60, Client: 40},
		TimelineEvents:      []models.TimelineEvent{{Timestamp: "01:20", Description: "Good discovery question", Score: 8, Suggestion: "Follow up on budget"}},
		RelationshipMetrics: &models.RelationshipMetrics{TrustIndex: 7, ReferralPotential: 5},
		BrilliantMoment:     &models.Moment{Timestamp: "03:10", Description: "Reframed price", Impact: "Client relaxed"},
	}
	out := NewPlainPrinter(&bytes.Buffer{}).FeedbackReport(f)
	for _, want := range []string{"Overall score: 7.5", "Active Listening", "Clear value proposition", "Ask more open questions", "You     ", "01:20", "→ Follow up on budget", "Trust index", "Reframed price"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Active Listening") > strings.Index(out, "Closing") {
		t.Error("categories must be sorted")
	}
}

func TestDashboard(t *testing.T) {
	stats := &models.DashboardStats{
		TotalSimulations:     4,
		AverageScore:         6.8,
		ScoresByRubric:       models.RubricScores{SPIN: 7, BANT: 6},
		FeedbackDistribution: models.FeedbackDistribution{Strengths: 2, Average: 1, Weaknesses: 1},
		RecentSessions:       []models.SessionSummary{{ConversationID: 9, Name: "Cold call", Score: 5, CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}},
	}
	out := NewPlainPrinter(&bytes.Buffer{}).Dashboard(models.User{Email: "a@b.c"}, stats)
	for _, want := range []string{"Welcome back, a@b.c", "Simulations: 4", "SPIN", "Strengths    ██████████░░░░░░░░░░ 2", "#9", "2026-05-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q:\n%s", want, out)
		}
	}
}

func TestPlans(t *testing.T) {
	out := NewPlainPrinter(&bytes.Buffer{}).Plans()
	if !strings.Contains(out, "€49.00/month") || !strings.Contains(out, "save €240 a year") {
		t.Errorf("unexpected plans:\n%s", out)
	}
}
