package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/ledger"
	"github.com/loomstudio/loomstudio/internal/provider"
	"github.com/loomstudio/loomstudio/internal/shared"
)

const systemInstruction = "You are the Loomstudio assistant. Answer questions about the user's generated projects and help them iterate. Be concise."

// CreditLedger is the slice of the ledger the orchestrator charges through.
type CreditLedger interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (ledger.Balance, error)
	TryDebit(ctx context.Context, accountID uuid.UUID, amount int64, description string) (bool, ledger.Balance, error)
}

// MetricsRecorder receives orchestrator metric observations.
type MetricsRecorder interface {
	ObserveProviderAttempt(operation, outcome string)
	ObserveStreamFragment()
}

// ServiceConfig tunes validation bounds and the chat model context.
type ServiceConfig struct {
	Pricing         PricingConfig
	PromptMinLen    int
	PromptMaxLen    int
	ContextMessages int
	ChatModel       string
	ChatTemperature float64
	ChatMaxTokens   int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Pricing == (PricingConfig{}) {
		c.Pricing = DefaultPricing()
	}
	if c.PromptMinLen <= 0 {
		c.PromptMinLen = 10
	}
	if c.PromptMaxLen <= 0 {
		c.PromptMaxLen = 4000
	}
	if c.ContextMessages <= 0 {
		c.ContextMessages = 20
	}
	if c.ChatModel == "" {
		c.ChatModel = "loom-chat-1"
	}
	if c.ChatTemperature == 0 {
		c.ChatTemperature = 0.7
	}
	return c
}

// Service sequences validation, cost estimation, the provider call,
// persistence, and the ledger charge for both request kinds.
type Service struct {
	repo     RepositoryPort
	provider provider.Client
	ledger   CreditLedger
	metrics  MetricsRecorder
	cfg      ServiceConfig
	logger   *slog.Logger
}

// NewService constructs a Service. metrics may be nil.
func NewService(repo RepositoryPort, client provider.Client, creditLedger CreditLedger, metrics MetricsRecorder, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		provider: client,
		ledger:   creditLedger,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// GenerateInput is one generation request.
type GenerateInput struct {
	Prompt  string
	Options provider.GenerateOptions
}

// GenerateOutput is a delivered generation.
type GenerateOutput struct {
	ProjectID uuid.UUID
	Files     map[string]string
	Preview   string
	Cost      int64
}

// Generate runs the one-shot flow. The cost check happens after the provider
// call succeeds but gates whether the result is ever surfaced or stored: a
// failed generation is never charged, and an unaffordable one is discarded.
func (s *Service) Generate(ctx context.Context, account *accounts.Account, input GenerateInput) (*GenerateOutput, error) {
	if account == nil {
		return nil, shared.ErrUnauthenticated
	}
	prompt := strings.TrimSpace(input.Prompt)
	if len(prompt) < s.cfg.PromptMinLen || len(prompt) > s.cfg.PromptMaxLen {
		return nil, fmt.Errorf("%w: prompt must be between %d and %d characters",
			shared.ErrInvalidInput, s.cfg.PromptMinLen, s.cfg.PromptMaxLen)
	}

	result, err := s.provider.Generate(ctx, prompt, input.Options)
	if err != nil {
		s.observeProvider("generate", "failure")
		return nil, mapProviderError(err)
	}
	s.observeProvider("generate", "success")

	outputBytes := 0
	for _, content := range result.Files {
		outputBytes += len(content)
	}
	cost := s.cfg.Pricing.GenerationCost(len(prompt), outputBytes, len(result.Files))

	if !account.IsAdmin() {
		ok, remaining, err := s.ledger.TryDebit(ctx, account.ID, cost, "Generation: "+truncate(prompt, 80))
		if err != nil {
			return nil, fmt.Errorf("studio: charge generation: %w", err)
		}
		if !ok {
			return nil, &ledger.InsufficientCreditsError{Required: cost, Available: remaining.Amount}
		}
	}

	project := &Project{
		ID:        uuid.New(),
		AccountID: account.ID,
		Prompt:    prompt,
		Files:     result.Files,
		Preview:   result.Preview,
		Status:    StatusReady,
		Cost:      cost,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		// The debit already happened; compensation is deliberately out of
		// scope for this service.
		s.logger.Error("persist project after charge",
			slog.String("account_id", account.ID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("studio: persist project: %w", err)
	}

	s.logger.Info("generation delivered",
		slog.String("project_id", project.ID.String()),
		slog.Int("files", len(project.Files)),
		slog.String("cost", ledger.FormatCredits(cost)))
	return &GenerateOutput{
		ProjectID: project.ID,
		Files:     project.Files,
		Preview:   project.Preview,
		Cost:      cost,
	}, nil
}

// ChatInput is one chat request. A zero ConversationID creates a new
// conversation.
type ChatInput struct {
	ConversationID uuid.UUID
	Message        string
	Attachments    []string
}

// ChatEvent is one element relayed to the caller: a text fragment, a
// terminal done marker, or a terminal error marker.
type ChatEvent struct {
	Fragment string
	Done     bool
	Err      error
}

// Chat runs the streaming flow. The cost is decided from the request shape
// and debited before streaming begins; a mid-stream provider failure does not
// reverse the debit.
func (s *Service) Chat(ctx context.Context, account *accounts.Account, input ChatInput) (*Conversation, <-chan ChatEvent, error) {
	if account == nil {
		return nil, nil, shared.ErrUnauthenticated
	}
	text := strings.TrimSpace(input.Message)
	if text == "" {
		return nil, nil, fmt.Errorf("%w: message must not be empty", shared.ErrInvalidInput)
	}

	conv, isNew, err := s.resolveConversation(ctx, account, input.ConversationID, text)
	if err != nil {
		return nil, nil, err
	}

	cost := s.cfg.Pricing.ChatCost(len(input.Attachments) > 0)

	// Pre-check so an unaffordable request aborts before any persistence or
	// provider traffic.
	if !account.IsAdmin() {
		balance, err := s.ledger.GetBalance(ctx, account.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("studio: read balance: %w", err)
		}
		if !balance.Unlimited && balance.Amount < cost {
			return nil, nil, &ledger.InsufficientCreditsError{Required: cost, Available: balance.Amount}
		}
	}

	if isNew {
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, nil, fmt.Errorf("studio: create conversation: %w", err)
		}
	}
	userMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        text,
		Attachments:    input.Attachments,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, nil, fmt.Errorf("studio: persist user message: %w", err)
	}

	if !account.IsAdmin() {
		ok, remaining, err := s.ledger.TryDebit(ctx, account.ID, cost, "Chat message")
		if err != nil {
			return nil, nil, fmt.Errorf("studio: charge chat: %w", err)
		}
		if !ok {
			return nil, nil, &ledger.InsufficientCreditsError{Required: cost, Available: remaining.Amount}
		}
	}

	history, err := s.repo.ListRecentMessages(ctx, conv.ID, s.cfg.ContextMessages)
	if err != nil {
		return nil, nil, fmt.Errorf("studio: load context: %w", err)
	}
	messages := make([]provider.Message, 0, len(history)+1)
	messages = append(messages, provider.Message{Role: RoleSystem.String(), Content: systemInstruction})
	for _, m := range history {
		messages = append(messages, provider.Message{Role: m.Role.String(), Content: m.Content})
	}

	stream, err := s.provider.ChatStream(ctx, messages, provider.ChatParams{
		Model:       s.cfg.ChatModel,
		Temperature: s.cfg.ChatTemperature,
		MaxTokens:   s.cfg.ChatMaxTokens,
	})
	if err != nil {
		// The debit stands: the user is charged for the attempt once the
		// call was dispatched.
		s.observeProvider("chat", "failure")
		return nil, nil, mapProviderError(err)
	}
	s.observeProvider("chat", "success")

	events := make(chan ChatEvent)
	go s.relay(ctx, conv, stream, events)
	return conv, events, nil
}

// GetProject fetches one owned artifact.
func (s *Service) GetProject(ctx context.Context, account *accounts.Account, id uuid.UUID) (*Project, error) {
	if account == nil {
		return nil, shared.ErrUnauthenticated
	}
	return s.repo.GetProject(ctx, id, account.ID)
}

// ListMessages fetches the full transcript of one owned conversation.
func (s *Service) ListMessages(ctx context.Context, account *accounts.Account, conversationID uuid.UUID) ([]Message, error) {
	if account == nil {
		return nil, shared.ErrUnauthenticated
	}
	if _, err := s.repo.GetConversation(ctx, conversationID, account.ID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

func (s *Service) resolveConversation(ctx context.Context, account *accounts.Account, id uuid.UUID, firstMessage string) (*Conversation, bool, error) {
	if id != uuid.Nil {
		conv, err := s.repo.GetConversation(ctx, id, account.ID)
		if err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}
	return &Conversation{
		ID:        uuid.New(),
		AccountID: account.ID,
		Title:     truncate(firstMessage, 60),
	}, true, nil
}

// relay drains the provider stream into the caller channel, accumulating the
// full reply. A caller abort stops the relay and discards the partial
// assistant message; the earlier debit remains.
func (s *Service) relay(ctx context.Context, conv *Conversation, stream <-chan provider.StreamEvent, events chan<- ChatEvent) {
	defer close(events)
	var full strings.Builder
	for ev := range stream {
		switch {
		case ev.Err != nil:
			s.logger.Warn("chat stream failed mid-flight",
				slog.String("conversation_id", conv.ID.String()),
				slog.Any("error", ev.Err))
			s.emit(ctx, events, ChatEvent{Err: ev.Err})
			return
		case ev.Done:
			s.finishExchange(ctx, conv, full.String(), events)
			return
		default:
			full.WriteString(ev.Fragment)
			if s.metrics != nil {
				s.metrics.ObserveStreamFragment()
			}
			if !s.emit(ctx, events, ChatEvent{Fragment: ev.Fragment}) {
				return
			}
		}
	}
	// Stream closed without a terminal event: the transport died. The
	// partial reply is discarded.
	s.emit(ctx, events, ChatEvent{Err: errors.New("stream terminated unexpectedly")})
}

func (s *Service) finishExchange(ctx context.Context, conv *Conversation, reply string, events chan<- ChatEvent) {
	// Persistence proceeds even if the caller disconnects right at the end:
	// the exchange completed.
	pctx := context.WithoutCancel(ctx)
	assistant := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        reply,
	}
	if err := s.repo.InsertMessage(pctx, assistant); err != nil {
		s.logger.Error("persist assistant message",
			slog.String("conversation_id", conv.ID.String()),
			slog.Any("error", err))
		s.emit(ctx, events, ChatEvent{Err: fmt.Errorf("studio: persist assistant message: %w", err)})
		return
	}
	if err := s.repo.FinalizeExchange(pctx, conv.ID, 2); err != nil {
		s.logger.Error("finalize exchange",
			slog.String("conversation_id", conv.ID.String()),
			slog.Any("error", err))
	}
	s.emit(ctx, events, ChatEvent{Done: true})
}

func (s *Service) emit(ctx context.Context, events chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) observeProvider(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveProviderAttempt(operation, outcome)
	}
}

// mapProviderError folds client errors into the caller-facing taxonomy.
func mapProviderError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if provider.IsRejected(err) {
		return fmt.Errorf("%w: %v", shared.ErrProviderRejected, err)
	}
	return fmt.Errorf("%w: %v", shared.ErrProviderUnavailable, err)
}

// truncate clips s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ CreditLedger = (*ledger.Service)(nil)
