package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goGate "github.com/MrEthical07/goGate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthn map[string]error

func (f fakeAuthn) Authenticate(_ context.Context, token string) (goGate.AuthContext, error) {
	if err, ok := f[token]; ok {
		return goGate.AuthContext{}, err
	}
	return goGate.AuthContext{PrincipalID: "p-" + token, SessionID: "s-" + token}, nil
}

func TestGuardPassesAuthContext(t *testing.T) {
	var got goGate.AuthContext
	h := NewGuard(fakeAuthn{}).Wrap(func(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
		got = auth
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "p-abc", got.PrincipalID)
	assert.Equal(t, "s-abc", got.SessionID)
}

func TestGuardRejections(t *testing.T) {
	authn := fakeAuthn{
		"old":  goGate.ErrTokenExpired,
		"bad":  goGate.ErrTokenInvalid,
		"down": goGate.ErrUnavailable,
	}

	tests := []struct {
		name          string
		header        string
		cookie        bool
		wantStatus    int
		wantChallenge string
	}{
		{"no header", "", false, http.StatusUnauthorized, `Bearer realm="gogate"`},
		{"cookie only", "", true, http.StatusUnauthorized, `Bearer realm="gogate"`},
		{"basic scheme", "Basic dXNlcjpwYXNz", false, http.StatusUnauthorized, `Bearer realm="gogate"`},
		{"empty bearer", "Bearer ", false, http.StatusUnauthorized, `Bearer realm="gogate"`},
		{"expired", "Bearer old", false, http.StatusUnauthorized, `Bearer realm="gogate", error="invalid_token"`},
		{"invalid", "Bearer bad", false, http.StatusUnauthorized, `Bearer realm="gogate", error="invalid_token"`},
		{"backend down", "Bearer down", false, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewGuard(authn).Wrap(func(http.ResponseWriter, *http.Request, goGate.AuthContext) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/presence?access_token=abc", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: "abc"})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.False(t, called, "handler must not run")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantChallenge, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestGuardCustomErrorWriter(t *testing.T) {
	var seen error
	g := NewGuard(fakeAuthn{"bad": goGate.ErrTokenInvalid}, WithErrorWriter(func(w http.ResponseWriter, _ *http.Request, err error) {
		seen = err
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer bad")
	rec := httptest.NewRecorder()
	g.WrapFunc(func(http.ResponseWriter, *http.Request, goGate.AuthContext) {})(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Error(t, seen)
	assert.ErrorIs(t, seen, goGate.ErrTokenInvalid)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "BEARER  tok ")
	tok, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}
