package jobs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type sweepRecorder struct {
	maxAge time.Duration
	calls  int
}

func (s *sweepRecorder) EnqueueProjectSweep(_ context.Context, maxAge time.Duration) (*asynq.TaskInfo, error) {
	s.calls++
	s.maxAge = maxAge
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func sweepRouter(enqueuer SweepEnqueuer) chi.Router {
	h := NewHandler(nil, enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.MountAdminRoutes(r)
	return r
}

func TestEnqueueSweepSubmitsTask(t *testing.T) {
	enqueuer := &sweepRecorder{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/sweep", strings.NewReader(`{"max_age_minutes":45}`))
	sweepRouter(enqueuer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enqueuer.calls)
	require.Equal(t, 45*time.Minute, enqueuer.maxAge)
	require.Contains(t, rec.Body.String(), `"task_id":"task-1"`)
}

func TestEnqueueSweepDefaultsAge(t *testing.T) {
	enqueuer := &sweepRecorder{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/sweep", strings.NewReader(`{}`))
	sweepRouter(enqueuer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, defaultSweepAge, enqueuer.maxAge)
}

func TestEnqueueSweepWithoutClient(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/sweep", strings.NewReader(`{}`))
	sweepRouter(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
