package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth returns middleware that accepts the key in either an X-API-Key
// header or an Authorization: Bearer <key> header.
// Uses crypto/subtle.ConstantTimeCompare to prevent timing attacks.
func APIKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validKey(r, key) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validKey(r *http.Request, key string) bool {
	if key == "" {
		return false
	}

	provided := r.Header.Get("X-API-Key")
	if provided == "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return false
		}
		provided = strings.TrimPrefix(auth, "Bearer ")
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1
}
