package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"sync"
)

type contextKey string

const authenticatedKey contextKey = "authenticated"

// Read lazily so env files loaded in main are respected.
var allowedOrigins = sync.OnceValue(func() map[string]struct{} {
	allowed := map[string]struct{}{}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	return allowed
})

// AuthMiddleware marks the request authenticated when the Authorization
// header carries the configured bearer token. It never rejects on its own;
// unauthenticated requests continue with redacted responses and RequireAuth
// guards the routes that need identity.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				header := r.Header.Get("Authorization")
				presented, ok := strings.CutPrefix(header, "Bearer ")
				if ok && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
					ctx := context.WithValue(r.Context(), authenticatedKey, true)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests that did not present the bearer token.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(r.Context()) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsAuthenticated reports whether the request presented the bearer token.
func IsAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(authenticatedKey).(bool)
	return ok
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Echo the origin back only if it's on our allow-list
		if _, ok := allowedOrigins()[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods",
				"GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, X-User-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
