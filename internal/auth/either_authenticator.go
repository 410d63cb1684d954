package auth

import "net/http"

// EitherAuthenticator accepts a request when any of its authenticators does.
// It backs the dual authorization on the trigger endpoints, where both an
// admin session and the shared scheduler secret are valid credentials.
type EitherAuthenticator struct {
	authenticators []Authenticator
}

var _ Authenticator = (*EitherAuthenticator)(nil)

func NewEitherAuthenticator(authenticators ...Authenticator) *EitherAuthenticator {
	return &EitherAuthenticator{authenticators: authenticators}
}

func (e *EitherAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, a := range e.authenticators {
			accepted := false
			probe := a.Authenticator(http.HandlerFunc(func(_ http.ResponseWriter, authed *http.Request) {
				accepted = true
				next.ServeHTTP(w, authed)
			}))

			probe.ServeHTTP(&discardRecorder{}, r)
			if accepted {
				return
			}
		}
		http.Error(w, "authentication failed", http.StatusUnauthorized)
	})
}

// discardRecorder swallows the rejection an inner authenticator writes, so
// only the outer decision reaches the client.
type discardRecorder struct{}

func (d *discardRecorder) Header() http.Header         { return http.Header{} }
func (d *discardRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (d *discardRecorder) WriteHeader(statusCode int)  {}
