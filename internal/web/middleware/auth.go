package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/spendcheck/internal/config"
	"github.com/JonMunkholm/spendcheck/internal/logging"
)

// APIKeyAuth returns middleware that validates the X-API-Key header against
// configured keys. With RequireAPIKey off every request passes through.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr).
					Warn("auth: missing API key")
				denyJSON(w, http.StatusUnauthorized, "AUTH001", "missing API key")
				return
			}

			if !isValidAPIKey(apiKey, cfg.APIKeys) {
				logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr).
					Warn("auth: invalid API key")
				denyJSON(w, http.StatusForbidden, "AUTH002", "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// denyJSON writes an error body shaped like the API's other error responses.
func denyJSON(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"message": msg,
		"code":    code,
	})
}

// isValidAPIKey compares against every configured key in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
