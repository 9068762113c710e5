package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/middleware"
	"github.com/MrEthical07/goGate/presence"
	"github.com/MrEthical07/goGate/transport/ws"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

func (s *Server) presence(w http.ResponseWriter, _ *http.Request, _ goGate.AuthContext) {
	renderJSON(w, http.StatusOK, s.registry.List())
}

type notificationRequest struct {
	// PrincipalID targets one principal; empty broadcasts.
	PrincipalID string          `json:"principalId"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
}

func (s *Server) notify(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
	var req notificationRequest
	if !decode(w, r, s.cfg.MaxBodyBytes, &req) {
		return
	}
	req.Event = strings.TrimSpace(req.Event)
	if req.Event == "" || req.Event == presence.EventPresence {
		writeProblem(w, http.StatusBadRequest, kindInvalidRequest, "event name required")
		return
	}

	var (
		sent int
		err  error
	)
	if req.PrincipalID == "" {
		sent, err = s.notifier.Broadcast(r.Context(), req.Event, req.Payload)
	} else {
		sent, err = s.notifier.NotifyPrincipal(r.Context(), req.PrincipalID, req.Event, req.Payload)
	}
	if err != nil {
		// Local delivery already happened; only the relay failed.
		hlog.FromRequest(r).Error().Err(err).Str("event", req.Event).Msg("notification relay failed")
	}
	hlog.FromRequest(r).Debug().
		Str("sender", auth.PrincipalID).
		Str("target", req.PrincipalID).
		Str("event", req.Event).
		Int("sent", sent).
		Msg("notification dispatched")
	renderJSON(w, http.StatusAccepted, map[string]any{"sent": sent, "relayed": err == nil})
}

func (s *Server) unlock(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
	id := chi.URLParam(r, "id")
	if err := s.engine.UnlockPrincipal(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().Str("admin", auth.PrincipalID).Str("principal_id", id).Msg("principal unlocked")
	w.WriteHeader(http.StatusNoContent)
}

// securityReport serves the engine's configuration posture to admins.
func (s *Server) securityReport(w http.ResponseWriter, _ *http.Request, _ goGate.AuthContext) {
	renderJSON(w, http.StatusOK, s.engine.SecurityReport())
}

// websocket upgrades GET /ws?principalId=&label=. A claimed principal must be
// proven by a bearer token or a verified session cookie for that principal.
// Without a claim the connection is anonymous.
func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := ws.Identity{
		PrincipalID: strings.TrimSpace(q.Get("principalId")),
		Label:       strings.TrimSpace(q.Get("label")),
	}

	if id.PrincipalID != "" {
		proven, err := s.provePrincipal(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if proven != id.PrincipalID {
			hlog.FromRequest(r).Warn().
				Bool("security_event", true).
				Str("claimed", id.PrincipalID).
				Str("proven", proven).
				Msg("websocket identity mismatch")
			writeProblem(w, http.StatusForbidden, kindForbidden, "claimed principal does not match credentials")
			return
		}
		if id.Label == "" {
			if p, err := s.engine.LookupPrincipal(r.Context(), proven); err == nil {
				id.Label = p.Label
			}
		}
	}

	// Serve has already answered the request when the upgrade fails.
	_ = s.ws.Serve(w, r, id)
}

func (s *Server) provePrincipal(r *http.Request) (string, error) {
	if token, ok := middleware.BearerToken(r); ok {
		auth, err := s.engine.Authenticate(r.Context(), token)
		if err != nil {
			return "", err
		}
		return auth.PrincipalID, nil
	}
	sid, ok := s.sessionID(r)
	if !ok {
		return "", goGate.ErrUnauthenticated
	}
	sess, err := s.engine.ResolveSession(r.Context(), sid)
	if err != nil {
		return "", err
	}
	if !sess.SecondFactorVerified {
		return "", goGate.ErrSecondFactorRequired
	}
	return sess.PrincipalID, nil
}
