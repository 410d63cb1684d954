package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/guideforge/guideforge/internal/config"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	SessionAuthentication string = "session"
	NoneAuthentication    string = "none"
)

// NewAuthenticator builds the session authenticator guarding the job API.
func NewAuthenticator(authConfig config.Auth) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case SessionAuthentication:
		return NewJWTAuthenticator(authConfig.SessionSigningKey)
	default:
		return NewNoneAuthenticator()
	}
}

// NewTriggerAuthenticator builds the dual authenticator guarding the
// dispatch trigger endpoints: an admin session or the shared bearer secret,
// either is accepted.
func NewTriggerAuthenticator(authConfig config.Auth) (Authenticator, error) {
	session, err := NewAuthenticator(authConfig)
	if err != nil {
		return nil, err
	}
	if authConfig.TriggerSecret == "" {
		return session, nil
	}
	return NewEitherAuthenticator(NewSecretAuthenticator(authConfig.TriggerSecret), session), nil
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) {
		return ""
	}
	return header[len(prefix):]
}
