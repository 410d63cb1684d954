package auth

import (
	"crypto/subtle"
	"net/http"
)

// SecretAuthenticator accepts a shared bearer secret. It is meant for the
// external scheduler hitting the dispatch trigger endpoints.
type SecretAuthenticator struct {
	secret []byte
}

var _ Authenticator = (*SecretAuthenticator)(nil)

func NewSecretAuthenticator(secret string) *SecretAuthenticator {
	return &SecretAuthenticator{secret: []byte(secret)}
}

func (a *SecretAuthenticator) Authenticate(token string) bool {
	return len(a.secret) > 0 && subtle.ConstantTimeCompare([]byte(token), a.secret) == 1
}

func (a *SecretAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticate(bearerToken(r)) {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := NewUserContext(r.Context(), User{Username: "scheduler", Scheduler: true})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
