package accounts

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/loomstudio/loomstudio/internal/platform/httpx"
	"github.com/loomstudio/loomstudio/internal/shared"
)

// Authenticator verifies upstream-issued bearer tokens and resolves the
// calling account. Token issuance and cookie handling belong to the calling
// layer; this middleware only validates the HS256 signature and subject.
type Authenticator struct {
	secret  []byte
	service *Service
	logger  *slog.Logger
}

// NewAuthenticator constructs the middleware.
func NewAuthenticator(secret string, service *Service, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{secret: []byte(secret), service: service, logger: logger}
}

// Middleware resolves the account and stores it in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := a.subject(r)
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		account, err := a.service.Resolve(r.Context(), email)
		if err != nil {
			a.logger.Error("resolve account", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), account)))
	})
}

// RequireAdmin gates privileged routes on the resolved role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := FromContext(r.Context())
		if account == nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		if !account.IsAdmin() {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) subject(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", shared.ErrUnauthenticated
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", shared.ErrUnauthenticated
	}
	return claims.Subject, nil
}
