package api

import (
	"net/http"
	"strings"

	"github.com/Priya8975/minutes-live-sync/internal/auth"
)

// authMiddleware requires a valid bearer token when m is non-nil. The
// backend's "Token <t>" scheme is accepted too, as is ?token= for WebSocket
// upgrades where browsers cannot set headers.
func authMiddleware(m *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				respondError(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			claims, err := m.ValidateToken(tokenStr)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && (parts[0] == "Bearer" || parts[0] == "Token") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
