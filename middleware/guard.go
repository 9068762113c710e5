package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goGate "github.com/MrEthical07/goGate"
)

// Authenticator verifies a bearer token. *goGate.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (goGate.AuthContext, error)
}

// GuardedHandlerFunc is a handler that only runs with a verified identity.
// The identity is a parameter, not a context value, so a handler cannot be
// mounted without a guard by accident.
type GuardedHandlerFunc func(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext)

// ErrorWriter renders a rejected request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Guard rejects requests without a valid bearer token.
type Guard struct {
	authn   Authenticator
	onError ErrorWriter
	realm   string
}

// Option configures a Guard.
type Option func(*Guard)

// WithErrorWriter replaces the plain-text 401 body.
func WithErrorWriter(fn ErrorWriter) Option {
	return func(g *Guard) {
		if fn != nil {
			g.onError = fn
		}
	}
}

func WithRealm(realm string) Option {
	return func(g *Guard) { g.realm = realm }
}

func NewGuard(authn Authenticator, opts ...Option) *Guard {
	g := &Guard{
		authn:   authn,
		onError: plainError,
		realm:   "gogate",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wrap returns an http.Handler that calls next only after Authenticate
// succeeds. The token is read from the Authorization header and nowhere else.
func (g *Guard) Wrap(next GuardedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g == nil || g.authn == nil {
			plainError(w, r, goGate.ErrEngineNotReady)
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+g.realm+`"`)
			g.onError(w, r, goGate.ErrUnauthenticated)
			return
		}

		auth, err := g.authn.Authenticate(r.Context(), token)
		if err != nil {
			switch goGate.KindOf(err) {
			case goGate.KindTokenExpired, goGate.KindTokenInvalid, goGate.KindUnauthenticated:
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+g.realm+`", error="invalid_token"`)
			}
			g.onError(w, r, err)
			return
		}
		next(w, r, auth)
	})
}

// WrapFunc is Wrap for use with routers that take http.HandlerFunc.
func (g *Guard) WrapFunc(next GuardedHandlerFunc) http.HandlerFunc {
	return g.Wrap(next).ServeHTTP
}

// BearerToken extracts the token from "Authorization: Bearer <token>". The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, goGate.ErrUnavailable) || errors.Is(err, goGate.ErrEngineNotReady) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, http.StatusText(status), status)
}
