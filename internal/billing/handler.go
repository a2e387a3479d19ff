package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/loomstudio/loomstudio/internal/ledger"
)

const maxWebhookBody = 64 << 10

// CreditGranter is the slice of the ledger that purchase settlement needs.
type CreditGranter interface {
	Credit(ctx context.Context, accountID uuid.UUID, amount int64, description string, category ledger.Category) (ledger.Balance, error)
}

// Config holds the webhook verification secret and the purchase exchange
// rate.
type Config struct {
	WebhookSecret string
	// CreditsPerCent converts a settled amount in cents into centi-credits.
	// Defaults to 1, one cent buys one centi-credit.
	CreditsPerCent int64
}

// Handler settles Stripe checkout sessions into ledger credits.
type Handler struct {
	logger *slog.Logger
	grants CreditGranter
	cfg    Config
}

func NewHandler(logger *slog.Logger, grants CreditGranter, cfg Config) *Handler {
	if cfg.CreditsPerCent <= 0 {
		cfg.CreditsPerCent = 1
	}
	return &Handler{logger: logger, grants: grants, cfg: cfg}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stripe", h.handleStripe)
}

func (h *Handler) handleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.cfg.WebhookSecret)
	if err != nil {
		h.logger.Warn("stripe webhook signature rejected", slog.Any("error", err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	// Unhandled event types are acknowledged so Stripe stops retrying them.
	if event.Type != "checkout.session.completed" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.settleCheckout(r.Context(), event); err != nil {
		h.logger.Error("settle checkout session", slog.Any("error", err))
		http.Error(w, "settlement failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) settleCheckout(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("billing: decode checkout session: %w", err)
	}
	accountID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return fmt.Errorf("billing: session %s carries no account reference: %w", session.ID, err)
	}
	if session.AmountTotal <= 0 {
		return fmt.Errorf("billing: session %s settled zero amount", session.ID)
	}

	amount := session.AmountTotal * h.cfg.CreditsPerCent
	balance, err := h.grants.Credit(ctx, accountID, amount, "Credit purchase "+session.ID, ledger.CategoryPurchase)
	if err != nil {
		return fmt.Errorf("billing: grant purchase: %w", err)
	}
	h.logger.Info("purchase settled",
		slog.String("account_id", accountID.String()),
		slog.String("session_id", session.ID),
		slog.String("credits", ledger.FormatCredits(amount)),
		slog.String("balance", balance.Display()))
	return nil
}
