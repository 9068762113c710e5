package httpapi

import (
	"net/http"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/middleware"
	"github.com/rs/zerolog/hlog"
)

// SessionCookieName carries the securecookie-encoded session id.
const SessionCookieName = "gg_session"

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time) error {
	encoded, err := s.cookies.Encode(SessionCookieName, sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// sessionID returns the id from a valid session cookie. A missing or
// tampered cookie reports false.
func (s *Server) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	var id string
	if err := s.cookies.Decode(SessionCookieName, c.Value, &id); err != nil {
		hlog.FromRequest(r).Warn().Bool("security_event", true).Err(err).Msg("session cookie rejected")
		return "", false
	}
	return id, id != ""
}

type signInRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type signInResponse struct {
	Principal goGate.PrincipalSummary `json:"principal"`
	State     goGate.AuthState        `json:"state"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decode(w, r, s.cfg.MaxBodyBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Secret == "" {
		writeError(w, r, goGate.ErrInvalidCredentials)
		return
	}

	res, err := s.engine.SignIn(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.setSessionCookie(w, res.SessionID, res.ExpiresAt); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.csrf.Issue(w); err != nil {
		writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, signInResponse{
		Principal: res.Principal,
		State:     res.State,
		ExpiresAt: res.ExpiresAt,
	})
}

type passkeyRequest struct {
	PrincipalID string `json:"principalId"`
	Code        string `json:"code"`
}

type tokenResponse struct {
	State       goGate.AuthState `json:"state"`
	AccessToken string           `json:"accessToken"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

func (s *Server) passkey(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.sessionID(r)
	if !ok {
		writeError(w, r, goGate.ErrSessionNotFound)
		return
	}
	var req passkeyRequest
	if !decode(w, r, s.cfg.MaxBodyBytes, &req) {
		return
	}

	state, err := s.engine.VerifyPasskey(r.Context(), req.PrincipalID, req.Code, sid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tok, err := s.engine.IssueAccessToken(r.Context(), sid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, tokenResponse{State: state, AccessToken: tok.Token, ExpiresAt: tok.ExpiresAt})
}

// token mints a fresh bearer token for the cookie session. Clients call it
// before the current token expires.
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	sid, ok := s.sessionID(r)
	if !ok {
		writeError(w, r, goGate.ErrSessionNotFound)
		return
	}
	tok, err := s.engine.IssueAccessToken(r.Context(), sid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, tokenResponse{
		State:       goGate.StateFullyAuthenticated,
		AccessToken: tok.Token,
		ExpiresAt:   tok.ExpiresAt,
	})
}

// logout accepts a bearer token or, for a session that never finished the
// second factor, the session cookie alone.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var principalID, sid string
	if token, ok := middleware.BearerToken(r); ok {
		auth, err := s.engine.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		principalID, sid = auth.PrincipalID, auth.SessionID
	} else if id, ok := s.sessionID(r); ok {
		sess, err := s.engine.ResolveSession(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		principalID, sid = sess.PrincipalID, sess.SessionID
	} else {
		writeError(w, r, goGate.ErrUnauthenticated)
		return
	}

	if err := s.engine.Logout(r.Context(), principalID, sid); err != nil {
		writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	s.csrf.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
	n, err := s.engine.LogoutAll(r.Context(), auth.PrincipalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	s.csrf.Clear(w)
	renderJSON(w, http.StatusOK, map[string]int{"sessions": n})
}

type meResponse struct {
	goGate.AuthContext
	Label string `json:"label"`
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
	p, err := s.engine.LookupPrincipal(r.Context(), auth.PrincipalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, meResponse{AuthContext: auth, Label: p.Label})
}

type sessionsResponse struct {
	Current  string               `json:"current"`
	Sessions []goGate.SessionInfo `json:"sessions"`
}

func (s *Server) sessions(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
	list, err := s.engine.ListSessions(r.Context(), auth.PrincipalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, sessionsResponse{Current: auth.SessionID, Sessions: list})
}
