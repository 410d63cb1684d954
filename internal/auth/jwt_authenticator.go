package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWTAuthenticator validates HMAC-signed session tokens issued by the
// account surface. Only the claims this service relies on are read.
type JWTAuthenticator struct {
	signingKey []byte
}

var _ Authenticator = (*JWTAuthenticator)(nil)

func NewJWTAuthenticator(signingKey string) (*JWTAuthenticator, error) {
	if signingKey == "" {
		return nil, errors.New("session authentication requires a signing key")
	}
	return &JWTAuthenticator{signingKey: []byte(signingKey)}, nil
}

func (a *JWTAuthenticator) Authenticate(token string) (User, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithIssuedAt(), jwt.WithExpirationRequired())
	t, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return a.signingKey, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("failed to authenticate token: %w", err)
	}
	if !t.Valid {
		return User{}, errors.New("failed to parse or validate token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, errors.New("failed to parse jwt token claims")
	}

	user := User{}
	if sub, err := claims.GetSubject(); err == nil {
		user.Username = sub
	}
	if org, ok := claims["org_id"].(string); ok {
		user.Organization = org
	}
	if user.Username == "" {
		return User{}, errors.New("token carries no subject")
	}
	return user, nil
}

func (a *JWTAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "No token provided", http.StatusUnauthorized)
			return
		}

		user, err := a.Authenticate(token)
		if err != nil {
			zap.S().Named("auth").Debugw("session authentication failed", "error", err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
