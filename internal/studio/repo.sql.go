package studio

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomstudio/loomstudio/internal/shared"
)

// Repository is the PostgreSQL implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

func (r *Repository) CreateProject(ctx context.Context, p *Project) error {
	const q = `
		INSERT INTO projects (id, account_id, prompt, files, preview, status, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		p.ID, p.AccountID, p.Prompt, p.Files, p.Preview, p.Status.String(), p.Cost,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("studio: create project: %w", err)
	}
	return nil
}

func (r *Repository) GetProject(ctx context.Context, id, accountID uuid.UUID) (*Project, error) {
	const q = `
		SELECT id, account_id, prompt, files, preview, status, cost, created_at, updated_at
		FROM projects
		WHERE id = $1 AND account_id = $2`
	row := r.pool.QueryRow(ctx, q, id, accountID)

	var p Project
	var status string
	err := row.Scan(&p.ID, &p.AccountID, &p.Prompt, &p.Files, &p.Preview, &status, &p.Cost, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("studio: get project: %w", err)
	}
	p.Status, err = ParseProjectStatus(status)
	if err != nil {
		return nil, fmt.Errorf("studio: get project: %w", err)
	}
	return &p, nil
}

func (r *Repository) CreateConversation(ctx context.Context, c *Conversation) error {
	const q = `
		INSERT INTO conversations (id, account_id, title)
		VALUES ($1, $2, $3)
		RETURNING message_count, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, c.ID, c.AccountID, c.Title).
		Scan(&c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("studio: create conversation: %w", err)
	}
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id, accountID uuid.UUID) (*Conversation, error) {
	const q = `
		SELECT id, account_id, title, message_count, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND account_id = $2`
	row := r.pool.QueryRow(ctx, q, id, accountID)

	var c Conversation
	err := row.Scan(&c.ID, &c.AccountID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("studio: get conversation: %w", err)
	}
	return &c, nil
}

func (r *Repository) InsertMessage(ctx context.Context, m *Message) error {
	const q = `
		INSERT INTO messages (id, conversation_id, role, content, attachments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q,
		m.ID, m.ConversationID, m.Role.String(), m.Content, m.Attachments,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("studio: insert message: %w", err)
	}
	return nil
}

// ListRecentMessages returns the newest limit messages in chronological
// order, ready to feed the model context window.
func (r *Repository) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, attachments, created_at
		FROM (
			SELECT id, conversation_id, role, content, attachments, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("studio: list recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, attachments, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("studio: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *Repository) FinalizeExchange(ctx context.Context, conversationID uuid.UUID, delta int) error {
	const q = `
		UPDATE conversations
		SET message_count = message_count + $2, updated_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, conversationID, delta)
	if err != nil {
		return fmt.Errorf("studio: finalize exchange: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Attachments, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("studio: scan message: %w", err)
		}
		parsed, err := ParseMessageRole(role)
		if err != nil {
			return nil, fmt.Errorf("studio: scan message: %w", err)
		}
		m.Role = parsed
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("studio: scan messages: %w", err)
	}
	return out, nil
}
