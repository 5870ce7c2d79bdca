package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireBearerToken guards /api when a token is configured. An empty
// configured token leaves the API open, which is the local-dev default.
func (s *Server) requireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.APIToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented := bearerToken(r)
		if presented == "" {
			respondError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer token required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			respondError(w, http.StatusForbidden, "invalid_token", "token rejected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	// Browser websocket clients cannot set headers; accept the query param.
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
