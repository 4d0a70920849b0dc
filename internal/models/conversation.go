package models

import (
	"encoding/json"
	"time"
)

// ConversationStatus is the lifecycle status of a remote conversation.
type ConversationStatus string

const (
	ConversationCreated ConversationStatus = "created"
	ConversationActive  ConversationStatus = "active"
	ConversationEnded   ConversationStatus = "ended"
)

// IsEnded reports whether the conversation has reached its terminal state.
func (s ConversationStatus) IsEnded() bool {
	return s == ConversationEnded
}

// Simulation is the remote resource that parameterizes a conversation.
type Simulation struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id,omitempty"`
	Config    SimulationConfig `json:"config,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// Conversation is a client-side, possibly stale copy of a remote conversation.
// The server is the only source of truth; an ended conversation never becomes active again.
type Conversation struct {
	ID              int64              `json:"id"`
	ConversationURL string             `json:"conversation_url"`
	Status          ConversationStatus `json:"status"`
	SimulationID    int64              `json:"simulation_id,omitempty"`
	UserID          int64              `json:"user_id,omitempty"`
	SectorCode      string             `json:"sector_code,omitempty"`
	CreatedAt       time.Time          `json:"created_at,omitempty"`
}

// UnmarshalJSON accepts both "id" and "conversation_id" for the identifier, since the
// conversation procedures return either depending on the endpoint.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type alias Conversation
	aux := struct {
		*alias
		ConversationID *int64 `json:"conversation_id"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.ID == 0 && aux.ConversationID != nil {
		c.ID = *aux.ConversationID
	}
	return nil
}

// ConversationRef is the input of the conversation and feedback procedures.
type ConversationRef struct {
	ConversationID int64 `json:"conversationId"`
}

// SimulationRef is the input of conversations.create.
type SimulationRef struct {
	SimulationID int64 `json:"simulationId"`
}
