// Package studio drives the end-to-end flow for generation and chat
// requests: validation, cost estimation, the provider call, persistence, and
// the ledger charge.
package studio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the closed set of generation artifact states. Transitions
// are one-directional: generating moves to ready or error and stops there.
type ProjectStatus int

const (
	StatusGenerating ProjectStatus = iota
	StatusReady
	StatusError
)

// String returns the persisted representation of the status.
func (s ProjectStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "generating"
	}
}

// ParseProjectStatus converts a persisted status back into the enum.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch s {
	case "generating":
		return StatusGenerating, nil
	case "ready":
		return StatusReady, nil
	case "error":
		return StatusError, nil
	default:
		return StatusGenerating, fmt.Errorf("studio: unknown project status %q", s)
	}
}

// Project is one generation artifact: the prompt and the produced file set.
// Terminal artifacts are never mutated by this service.
type Project struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Prompt    string
	Files     map[string]string
	Preview   string
	Status    ProjectStatus
	Cost      int64 // charged centi-credits
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRole is the closed set of chat participants.
type MessageRole int

const (
	RoleUser MessageRole = iota
	RoleAssistant
	RoleSystem
)

// String returns the wire and persisted representation of the role.
func (r MessageRole) String() string {
	switch r {
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// ParseMessageRole converts a persisted role back into the enum.
func ParseMessageRole(s string) (MessageRole, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	case "system":
		return RoleSystem, nil
	default:
		return RoleUser, fmt.Errorf("studio: unknown message role %q", s)
	}
}

// Conversation groups an account's chat exchanges. The message count and
// update timestamp advance together after each completed exchange.
type Conversation struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one append-only chat turn.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           MessageRole
	Content        string
	Attachments    []string
	CreatedAt      time.Time
}
