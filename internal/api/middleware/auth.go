package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// TokenSource returns the token clients must present.
type TokenSource interface {
	Token() string
}

// BearerAuth returns middleware that requires "Authorization: Bearer <token>"
// matching the install token.
func BearerAuth(tokens TokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				challengeAuth(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				challengeAuth(w, "invalid Authorization header format")
				return
			}

			want := tokens.Token()
			if want == "" || subtle.ConstantTimeCompare([]byte(parts[1]), []byte(want)) != 1 {
				slog.Debug("token validation failed", "remote", r.RemoteAddr)
				invalidToken(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// challengeAuth sends a 401 with a Bearer challenge for unauthenticated requests.
func challengeAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="focus"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// invalidToken sends a 401 for requests with a wrong Bearer token.
func invalidToken(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
