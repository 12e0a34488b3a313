package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Middleware extracts a bearer token, verifies it, and attaches the principal
// to the request context. Requests without a token proceed as anonymous; the
// capability check happens at execution time, not here.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				log.Debug().Err(err).Msg("Rejecting bearer token")
				http.Error(w, `{"error":"Invalid or expired token","code":"INVALID_TOKEN"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
