package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tradedocs/tradedocs/internal/platform/httpx"
)

type contextKey struct{}

// RequireAPIKey authenticates requests via "Authorization: Bearer keyID.secret".
func RequireAPIKey(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing API key")
				return
			}
			key, err := service.Verify(r.Context(), token)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyFromContext returns the authenticated API key, if any.
func KeyFromContext(ctx context.Context) (*APIKey, bool) {
	key, ok := ctx.Value(contextKey{}).(*APIKey)
	return key, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
