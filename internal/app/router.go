package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/billing"
	"github.com/loomstudio/loomstudio/internal/ledger"
	"github.com/loomstudio/loomstudio/internal/observability"
	"github.com/loomstudio/loomstudio/internal/platform/httpx"
	"github.com/loomstudio/loomstudio/internal/shared"
	"github.com/loomstudio/loomstudio/internal/studio"
	"github.com/loomstudio/loomstudio/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Authenticator  *accounts.Authenticator
	StudioHandler  *studio.Handler
	LedgerHandler  *ledger.Handler
	BillingHandler *billing.Handler
	JobHandler     *jobs.Handler
	PlanLimiter    *shared.RateLimiter
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Loomstudio defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(params.Authenticator.Middleware)

		api.Group(func(metered chi.Router) {
			metered.Use(planLimitMiddleware(params.PlanLimiter, params.Logger))
			params.StudioHandler.MountRoutes(metered)
		})

		params.LedgerHandler.MountRoutes(api)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(accounts.RequireAdmin)
			params.LedgerHandler.MountAdminRoutes(admin)
			if params.JobHandler != nil {
				params.JobHandler.MountAdminRoutes(admin)
			}
		})
	})

	if params.BillingHandler != nil {
		r.Route("/webhooks", params.BillingHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}

// planLimitMiddleware enforces the per-account budget on the metered
// endpoints. Admins are exempt.
func planLimitMiddleware(limiter *shared.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := accounts.FromContext(r.Context())
			if account == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if account.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), account.ID.String())
			if err != nil {
				// A limiter outage must not take requests down with it.
				logger.Warn("plan limiter unavailable", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				httpx.RespondError(w, fmt.Errorf("%w: plan request budget exhausted", shared.ErrRateLimited))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
