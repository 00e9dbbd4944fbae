package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// authMiddleware requires "Authorization: Bearer <apiKey>" on the document
// routes. An empty apiKey disables the check; New warns about that once at
// startup. Rejections are JSON errors of kind auth_rejected carrying a
// WWW-Authenticate challenge. Token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		if present && subtle.ConstantTimeCompare([]byte(token), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		challenge := `Bearer realm="docqa"`
		msg := "an API key is required for document routes"
		if present {
			challenge += ` error="invalid_token"`
			msg = "API key rejected"
		}
		log.Warn("auth: request rejected", slog.Bool("token_present", present))
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, log, http.StatusUnauthorized, msg, string(rag.KindAuthRejected))
	})
}

// bearerToken extracts the credential from an Authorization header using the
// Bearer scheme (matched case-insensitively). present is false when the
// header is absent, uses another scheme or carries an empty token.
func bearerToken(r *http.Request) (token string, present bool) {
	scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
