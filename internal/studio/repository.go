package studio

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort defines persistence for projects, conversations, and
// messages. Transactions and messages are append-only.
type RepositoryPort interface {
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id, accountID uuid.UUID) (*Project, error)

	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id, accountID uuid.UUID) (*Conversation, error)

	InsertMessage(ctx context.Context, msg *Message) error
	// ListRecentMessages returns up to limit of the newest messages in
	// chronological order.
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	// FinalizeExchange bumps the conversation's message count and touches
	// its update timestamp.
	FinalizeExchange(ctx context.Context, conversationID uuid.UUID, delta int) error
}
