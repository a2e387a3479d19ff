package httpx

import (
	"errors"
	"net/http"

	"github.com/loomstudio/loomstudio/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// The insufficient-credits outcome carries a structured payload and is
// rendered by the owning handler, not here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrRateLimited):
		Problem(w, http.StatusTooManyRequests, "Rate Limited", err.Error())
	case errors.Is(err, shared.ErrProviderRejected):
		Problem(w, http.StatusBadGateway, "Provider Rejected Request", err.Error())
	case errors.Is(err, shared.ErrProviderUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Provider Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
