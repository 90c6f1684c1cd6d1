// Package http exposes the REST surface of the gateway: buffer inspection,
// fragment/activity injection and the turn log.
package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// extractBearerToken returns the token from an "Authorization: Bearer" header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// tokenMatches compares the presented bearer token against want. An empty
// want disables authentication.
func tokenMatches(r *http.Request, want string) bool {
	if want == "" {
		return true
	}
	got := extractBearerToken(r)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatches(r, token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
