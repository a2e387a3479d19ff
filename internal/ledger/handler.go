package ledger

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/platform/httpx"
	"github.com/loomstudio/loomstudio/internal/shared"
)

// Handler wires HTTP endpoints for balance and credit administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers caller-facing credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/credits", h.getBalance)
	r.Get("/credits/history", h.getHistory)
}

// MountAdminRoutes registers privileged ledger routes. Callers are already
// admin-gated by middleware.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/credits/add", h.addCredits)
	r.Post("/credits/adjust", h.adjustCredits)
}

type balanceResponse struct {
	Credits        float64 `json:"credits"`
	DisplayCredits string  `json:"display_credits"`
	IsAdmin        bool    `json:"is_admin"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	balance, err := h.service.GetBalance(r.Context(), account.ID)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		Credits:        balance.Credits(),
		DisplayCredits: balance.Display(),
		IsAdmin:        balance.Unlimited,
	})
}

type transactionResponse struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"`
	Balance     string    `json:"balance"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

type historyResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Page         int                   `json:"page"`
	TotalPages   int                   `json:"total_pages"`
	Total        int                   `json:"total"`
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	txs, pagination, err := h.service.History(r.Context(), account.ID, page, 20)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := historyResponse{
		Transactions: make([]transactionResponse, 0, len(txs)),
		Page:         pagination.Page,
		TotalPages:   pagination.TotalPages,
		Total:        pagination.Total,
	}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:          tx.ID.String(),
			Amount:      FormatCredits(tx.Amount),
			Balance:     FormatCredits(tx.Balance),
			Description: tx.Description,
			Category:    tx.Category.String(),
			CreatedAt:   tx.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type addCreditsRequest struct {
	AccountID   string  `json:"account_id" validate:"required,uuid4"`
	Credits     float64 `json:"credits" validate:"required,gt=0"`
	Category    string  `json:"category" validate:"required,oneof=purchase bonus refund"`
	Description string  `json:"description" validate:"required"`
}

func (h *Handler) addCredits(w http.ResponseWriter, r *http.Request) {
	var req addCreditsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidInput)
		return
	}
	category, err := ParseCategory(req.Category)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidInput)
		return
	}
	total, err := h.service.Credit(r.Context(), accountID, toCenti(req.Credits), req.Description, category)
	if err != nil {
		h.logger.Error("add credits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"new_total": total.Display()})
}

type adjustCreditsRequest struct {
	AccountID string  `json:"account_id" validate:"required,uuid4"`
	Delta     float64 `json:"delta" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
}

func (h *Handler) adjustCredits(w http.ResponseWriter, r *http.Request) {
	var req adjustCreditsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidInput)
		return
	}
	previous, updated, err := h.service.AdminAdjust(r.Context(), accountID, toCenti(req.Delta), req.Reason)
	if err != nil {
		h.logger.Error("adjust credits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"previous_balance": FormatCredits(previous),
		"new_balance":      FormatCredits(updated),
	})
}

func toCenti(credits float64) int64 {
	return int64(math.Round(credits * 100))
}
