package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// Procedure names understood by the backend.
const (
	ProcCreateSimulation   = "simulations.create"
	ProcCreateConversation = "conversations.create"
	ProcGetConversation    = "conversations.getById"
	ProcEndConversation    = "conversations.end"
	ProcGenerateFeedback   = "feedback.generate"
	ProcGetFeedback        = "feedback.getByConversationId"
	ProcDashboardStats     = "dashboard.stats"
	ProcListSectors        = "sectors.list"
)

// IdempotencyKeyHeader carries the idempotency key of feedback generation requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// ErrFeedbackNotReady is returned while the backend has not produced feedback yet.
// It is an expected, retryable condition.
var ErrFeedbackNotReady = errors.New("feedback not ready")

// CreateSimulation creates the remote simulation resource from a configuration.
func (c *Client) CreateSimulation(ctx context.Context, cfg models.SimulationConfig) (*models.Simulation, error) {
	var sim models.Simulation
	if err := c.Call(ctx, ProcCreateSimulation, cfg, &sim); err != nil {
		return nil, err
	}
	if sim.ID == 0 {
		return nil, fmt.Errorf("rpc %s: response has no simulation id", ProcCreateSimulation)
	}
	slog.Debug("rpc.Client.CreateSimulation: simulation created", "simulation_id", sim.ID)
	return &sim, nil
}

// CreateConversation creates the remote conversation bound to a simulation.
func (c *Client) CreateConversation(ctx context.Context, simulationID int64) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.Call(ctx, ProcCreateConversation, models.SimulationRef{SimulationID: simulationID}, &conv); err != nil {
		return nil, err
	}
	if conv.ID == 0 {
		return nil, fmt.Errorf("rpc %s: response has no conversation id", ProcCreateConversation)
	}
	if conv.SimulationID == 0 {
		conv.SimulationID = simulationID
	}
	slog.Debug("rpc.Client.CreateConversation: conversation created", "conversation_id", conv.ID, "simulation_id", simulationID)
	return &conv, nil
}

// GetConversation fetches the current state of a conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.Call(ctx, ProcGetConversation, models.ConversationRef{ConversationID: conversationID}, &conv); err != nil {
		return nil, err
	}
	if conv.ID == 0 {
		conv.ID = conversationID
	}
	return &conv, nil
}

// EndConversation asks the backend to end a conversation.
func (c *Client) EndConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := c.Call(ctx, ProcEndConversation, models.ConversationRef{ConversationID: conversationID}, &conv)
	if errors.Is(err, ErrNullResult) {
		return &models.Conversation{ID: conversationID, Status: models.ConversationEnded}, nil
	}
	if err != nil {
		return nil, err
	}
	if conv.ID == 0 {
		conv.ID = conversationID
	}
	return &conv, nil
}

// FeedbackIdempotencyKey derives the stable idempotency key for a conversation's feedback.
func FeedbackIdempotencyKey(conversationID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("salescoach:feedback.generate:%d", conversationID))).String()
}

// GenerateFeedback triggers feedback generation. It is safe to call while the backend is
// already generating: the request carries a stable idempotency key and a conflict answer is
// reported as "in_progress" instead of an error.
func (c *Client) GenerateFeedback(ctx context.Context, conversationID int64) (*models.GenerateFeedbackResult, error) {
	var res models.GenerateFeedbackResult
	headers := map[string]string{IdempotencyKeyHeader: FeedbackIdempotencyKey(conversationID)}
	err := c.call(ctx, ProcGenerateFeedback, models.ConversationRef{ConversationID: conversationID}, &res, headers)
	switch {
	case err == nil:
	case IsConflict(err):
		slog.Debug("rpc.Client.GenerateFeedback: generation already in progress", "conversation_id", conversationID)
		return &models.GenerateFeedbackResult{Status: "in_progress"}, nil
	case errors.Is(err, ErrNullResult):
		return &models.GenerateFeedbackResult{Status: "accepted"}, nil
	default:
		return nil, err
	}
	if res.Status == "" {
		res.Status = "accepted"
	}
	return &res, nil
}

// GetFeedback fetches the feedback of a conversation. A missing or empty payload is
// reported as ErrFeedbackNotReady.
func (c *Client) GetFeedback(ctx context.Context, conversationID int64) (*models.Feedback, error) {
	var fb models.Feedback
	err := c.Call(ctx, ProcGetFeedback, models.ConversationRef{ConversationID: conversationID}, &fb)
	if errors.Is(err, ErrNullResult) || IsNotFound(err) {
		return nil, ErrFeedbackNotReady
	}
	if err != nil {
		return nil, err
	}
	if fb.IsEmpty() {
		return nil, ErrFeedbackNotReady
	}
	if fb.ConversationID == 0 {
		fb.ConversationID = conversationID
	}
	return &fb, nil
}

// DashboardStats fetches the aggregated statistics of the current user.
func (c *Client) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats
	if err := c.Call(ctx, ProcDashboardStats, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListSectors fetches the available sectors.
func (c *Client) ListSectors(ctx context.Context) ([]models.Sector, error) {
	var sectors []models.Sector
	err := c.Call(ctx, ProcListSectors, nil, &sectors)
	if errors.Is(err, ErrNullResult) {
		return nil, nil
	}
	return sectors, err
}

// Login exchanges email and password for an access token.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var res models.AuthResponse
	if err := c.rest(ctx, http.MethodPost, "/auth/login", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var res models.AuthResponse
	if err := c.rest(ctx, http.MethodPost, "/auth/register", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitOnboarding stores the onboarding profile of the current user.
func (c *Client) SubmitOnboarding(ctx context.Context, profile models.OnboardingProfile) error {
	return c.rest(ctx, http.MethodPost, "/user/onboarding", profile, nil)
}

// CreateCheckout creates a checkout session server-side.
func (c *Client) CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	var res models.CheckoutSession
	if err := c.rest(ctx, http.MethodPost, "/payments/create-checkout", req, &res); err != nil {
		return nil, err
	}
	if res.CheckoutURL == "" {
		return nil, fmt.Errorf("create-checkout: response has no checkout_url")
	}
	return &res, nil
}

// CheckoutStatus fetches the status of a checkout session.
func (c *Client) CheckoutStatus(ctx context.Context, sessionID string) (*models.CheckoutStatus, error) {
	var res models.CheckoutStatus
	path := "/payments/checkout/" + url.PathEscape(sessionID) + "/status"
	if err := c.rest(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
