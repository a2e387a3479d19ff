package billing

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/loomstudio/loomstudio/internal/ledger"
)

const testSecret = "whsec_test"

type grantRecorder struct {
	accountID uuid.UUID
	amount    int64
	category  ledger.Category
	calls     int
}

func (g *grantRecorder) Credit(_ context.Context, accountID uuid.UUID, amount int64, _ string, category ledger.Category) (ledger.Balance, error) {
	g.calls++
	g.accountID = accountID
	g.amount = amount
	g.category = category
	return ledger.Balance{Amount: amount}, nil
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testSecret)
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func newTestRouter(grants CreditGranter) chi.Router {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), grants, Config{WebhookSecret: testSecret})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestStripeWebhookSettlesCheckout(t *testing.T) {
	accountID := uuid.New()
	payload := fmt.Sprintf(`{
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"client_reference_id": %q,
			"amount_total": 1000
		}}
	}`, accountID)

	grants := &grantRecorder{}
	rec := httptest.NewRecorder()
	newTestRouter(grants).ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, grants.calls)
	require.Equal(t, accountID, grants.accountID)
	require.Equal(t, int64(1000), grants.amount)
	require.Equal(t, ledger.CategoryPurchase, grants.category)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	grants := &grantRecorder{}
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	newTestRouter(grants).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, grants.calls)
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	grants := &grantRecorder{}
	payload := `{"type": "invoice.paid", "data": {"object": {}}}`
	rec := httptest.NewRecorder()
	newTestRouter(grants).ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, grants.calls)
}

func TestStripeWebhookRejectsMissingAccount(t *testing.T) {
	grants := &grantRecorder{}
	payload := `{
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_2", "amount_total": 500}}
	}`
	rec := httptest.NewRecorder()
	newTestRouter(grants).ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Zero(t, grants.calls)
}
