package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// SessionAPI creates the remote resources of a practice session.
type SessionAPI interface {
	CreateSimulation(ctx context.Context, cfg models.SimulationConfig) (*models.Simulation, error)
	CreateConversation(ctx context.Context, simulationID int64) (*models.Conversation, error)
}

// LaunchResult is a usable practice session.
type LaunchResult struct {
	Simulation   *models.Simulation
	Conversation *models.Conversation
	Handoff      Handoff
}

// Launcher validates a configuration and creates the simulation and its conversation.
type Launcher struct {
	api         SessionAPI
	demoDomains []string
}

// NewLauncher creates a Launcher. A nil demoDomains uses DefaultDemoDomains.
func NewLauncher(api SessionAPI, demoDomains []string) *Launcher {
	if demoDomains == nil {
		demoDomains = DefaultDemoDomains
	}
	return &Launcher{api: api, demoDomains: demoDomains}
}

// Launch refuses invalid configurations before any remote call. The conversation is
// created only after the simulation exists; if either call fails no session is returned.
func (l *Launcher) Launch(ctx context.Context, cfg models.SimulationConfig) (*LaunchResult, error) {
	if err := cfg.Validate(); err != nil {
		slog.Debug("Launcher.Launch: configuration rejected", "error", err)
		return nil, err
	}

	sim, err := l.api.CreateSimulation(ctx, cfg)
	if err != nil {
		slog.Error("Launcher.Launch: failed to create simulation", "error", err)
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}

	conv, err := l.api.CreateConversation(ctx, sim.ID)
	if err != nil {
		slog.Error("Launcher.Launch: failed to create conversation", "simulation_id", sim.ID, "error", err)
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	handoff := HandoffFor(conv.ConversationURL, l.demoDomains)
	slog.Info("Launcher.Launch: session launched", "simulation_id", sim.ID, "conversation_id", conv.ID, "handoff", handoff)
	return &LaunchResult{Simulation: sim, Conversation: conv, Handoff: handoff}, nil
}
