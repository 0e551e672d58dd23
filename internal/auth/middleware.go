package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can read or shadow our values.
type contextKey string

const clientIDKey contextKey = "clientID"

// RequireToken is a middleware that rejects requests without a valid
// "Authorization: Bearer <jwt>" header with 401, and stores the client id in
// the request context otherwise.
//
// Browsers cannot set headers on a WebSocket handshake, so a token in the
// "token" query parameter is accepted as well.
func RequireToken(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := tokens.Validate(bearerToken(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="code-sandbox"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid bearer token required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), clientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIDFromContext returns the authenticated client, or ("", false) when
// the request went through no token check.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDKey).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
