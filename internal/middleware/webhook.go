package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
)

// WebhookDigest returns middleware that checks the given header against the
// hex SHA-256 digest of secret. Mismatch yields 401; an unset secret yields
// 503 so a misconfigured deployment never accepts unsigned events.
func WebhookDigest(secret, header string) func(http.Handler) http.Handler {
	expected := Digest(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "webhook secret not configured")
				return
			}

			got := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				slog.WarnContext(r.Context(), "webhook signature rejected", "path", r.URL.Path, "present", got != "")
				writeJSONError(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Digest returns the lowercase hex SHA-256 of secret, the value senders put in
// the signature header.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
