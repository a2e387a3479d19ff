package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates the request carries no resolvable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized indicates the caller lacks privilege for the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput indicates the request failed local validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnavailable indicates the provider kept failing after all retries.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderRejected indicates the provider rejected the request outright.
	ErrProviderRejected = errors.New("provider rejected request")
	// ErrRateLimited indicates the per-account request budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
)
