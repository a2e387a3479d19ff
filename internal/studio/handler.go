package studio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/ledger"
	"github.com/loomstudio/loomstudio/internal/platform/httpx"
	"github.com/loomstudio/loomstudio/internal/provider"
	"github.com/loomstudio/loomstudio/internal/shared"
)

// Handler exposes the generation and chat endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes attaches the studio endpoints. The caller wraps the router in
// the authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/generate", h.generate)
	r.Post("/chat", h.chat)
	r.Get("/projects/{projectID}", h.getProject)
	r.Get("/conversations/{conversationID}/messages", h.listMessages)
}

type generateRequest struct {
	Prompt    string   `json:"prompt" validate:"required"`
	Framework string   `json:"framework,omitempty"`
	Styling   string   `json:"styling,omitempty"`
	Features  []string `json:"features,omitempty"`
}

type generateResponse struct {
	ProjectID   string            `json:"project_id"`
	Files       map[string]string `json:"files"`
	Preview     string            `json:"preview,omitempty"`
	CreditsCost int64             `json:"credits_cost"`
	DisplayCost string            `json:"display_cost"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	out, err := h.service.Generate(r.Context(), account, GenerateInput{
		Prompt: req.Prompt,
		Options: provider.GenerateOptions{
			Framework: req.Framework,
			Styling:   req.Styling,
			Features:  req.Features,
		},
	})
	if err != nil {
		h.respondStudioError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, generateResponse{
		ProjectID:   out.ProjectID.String(),
		Files:       out.Files,
		Preview:     out.Preview,
		CreditsCost: out.Cost,
		DisplayCost: ledger.FormatCredits(out.Cost),
	})
}

type chatRequest struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Message        string   `json:"message" validate:"required"`
	Attachments    []string `json:"attachments,omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req chatRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	var convID uuid.UUID
	if req.ConversationID != "" {
		parsed, err := uuid.Parse(req.ConversationID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request body", "conversation_id must be a UUID")
			return
		}
		convID = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Streaming unsupported", "response writer does not support flushing")
		return
	}

	conv, events, err := h.service.Chat(r.Context(), account, ChatInput{
		ConversationID: convID,
		Message:        req.Message,
		Attachments:    req.Attachments,
	})
	if err != nil {
		h.respondStudioError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Conversation-Id", conv.ID.String())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		switch {
		case ev.Err != nil:
			h.logger.Warn("chat stream aborted", slog.Any("error", ev.Err))
			writeSSE(w, "error", "stream failed")
			flusher.Flush()
			return
		case ev.Done:
			writeSSE(w, "done", conv.ID.String())
			flusher.Flush()
			return
		default:
			writeSSE(w, "", ev.Fragment)
			flusher.Flush()
		}
	}
}

// writeSSE frames one server-sent event. Payloads containing newlines become
// one data line per piece; a single data line with an embedded newline would
// either drop text or terminate the event early on a conforming client.
func writeSSE(w io.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "projectID must be a UUID")
		return
	}
	project, err := h.service.GetProject(r.Context(), account, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid identifier", "conversationID must be a UUID")
		return
	}
	messages, err := h.service.ListMessages(r.Context(), account, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) respondStudioError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *ledger.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		httpx.JSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     "insufficient_credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
			"display":   ledger.FormatCredits(insufficient.Required),
		})
		return
	}
	httpx.RespondError(w, err)
}
