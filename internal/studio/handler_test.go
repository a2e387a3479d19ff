package studio

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/loomstudio/loomstudio/internal/accounts"
)

func newTestRouter(svc *Service, account *accounts.Account) chi.Router {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(accounts.ContextWithAccount(req.Context(), account)))
		})
	})
	h.MountRoutes(r)
	return r
}

func TestChatEndpointFramesMultilineFragments(t *testing.T) {
	repo := newMemoryRepo()
	client := &fakeProvider{fragments: []string{"first line\nsecond line", "tail"}}
	svc := newTestService(repo, client, &fakeLedger{balance: 1_000})
	router := newTestRouter(svc, standardAccount())

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello there"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	convID := rec.Header().Get("X-Conversation-Id")
	require.NotEmpty(t, convID)

	body := rec.Body.String()
	// Every line of a multi-line fragment carries its own data prefix.
	require.Contains(t, body, "data: first line\ndata: second line\n\n")
	require.Contains(t, body, "data: tail\n\n")
	require.Contains(t, body, "event: done\ndata: "+convID+"\n\n")
	require.NotContains(t, body, "\nsecond line\n", "continuation line escaped its data prefix")
}

func TestChatEndpointEmitsErrorEvent(t *testing.T) {
	repo := newMemoryRepo()
	client := &fakeProvider{fragments: []string{"partial"}, streamErr: errors.New("connection reset")}
	svc := newTestService(repo, client, &fakeLedger{balance: 1_000})
	router := newTestRouter(svc, standardAccount())

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello there"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "data: partial\n\n")
	require.Contains(t, body, "event: error\ndata: stream failed\n\n")
	require.NotContains(t, body, "event: done")
}
