package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/omnivault/omnivault/internal/auth"
)

// walletKey is the context key for the authenticated wallet address.
type walletKey struct{}

// SetWallet stores the authenticated ledger address in the context.
func SetWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey{}, wallet)
}

// GetWallet retrieves the authenticated ledger address from the context.
// Returns empty string if the identity has no linked wallet.
func GetWallet(ctx context.Context) string {
	if wallet, ok := ctx.Value(walletKey{}).(string); ok {
		return wallet
	}
	return ""
}

// writeAuthError writes the standard error envelope without importing the
// api package (which imports middleware).
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%q,"message":%q}}`, code, message)
}

// Auth validates the Bearer token on every request and places the
// authenticated identity (email) and linked wallet on the request context.
// Refresh tokens are rejected here; they are only good for /auth/refresh.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, http.StatusUnauthorized, "auth_failed", "Authorization header is required")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, http.StatusUnauthorized, "auth_failed", "Authorization header must be 'Bearer <token>'")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				slog.DebugContext(r.Context(), "token validation failed", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "auth_failed", "Invalid or expired token")
				return
			}

			if claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, http.StatusUnauthorized, "auth_failed", "Access token required")
				return
			}

			ctx := SetIdentity(r.Context(), claims.Email)
			if claims.Wallet != "" {
				ctx = SetWallet(ctx, claims.Wallet)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
