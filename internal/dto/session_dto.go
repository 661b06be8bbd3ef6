package dto

import (
	"silo-be/pkg/markdown"
	"silo-be/pkg/orchestrator"
)

type CreateSessionRequest struct {
	// ClientID lets a returning browser keep its settings.
	ClientID string `json:"client_id" validate:"omitempty,max=64"`
}

type SessionResponse struct {
	Token     string         `json:"token"`
	SessionID string         `json:"session_id"`
	ClientID  string         `json:"client_id"`
	State     *StateResponse `json:"state"`
}

// StateResponse is a snapshot plus the parsed document of its web answer.
type StateResponse struct {
	orchestrator.Snapshot
	Document *markdown.Document `json:"document,omitempty"`
}

type AgentRequest struct {
	Mode string `json:"mode" validate:"required,oneof=auto deep_research creative live"`
}

type DocsRequest struct {
	Open *bool `json:"open" validate:"required"`
}

// SessionStateMessage travels on the in-process bus from an orchestrator to the hub.
type SessionStateMessage struct {
	SessionID string                `json:"session_id"`
	State     orchestrator.Snapshot `json:"state"`
}
