package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/rs/zerolog/hlog"
)

// Transport-level kinds for failures the engine never reports.
const (
	kindInvalidRequest = "InvalidRequest"
	kindForbidden      = "Forbidden"
	kindNotFound       = "NotFound"
)

type errorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter,omitempty"`
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind goGate.ErrorKind) int {
	switch kind {
	case goGate.KindInvalidCredentials,
		goGate.KindInvalidPasskey,
		goGate.KindSessionExpired,
		goGate.KindSessionNotFound,
		goGate.KindUnauthenticated,
		goGate.KindTokenExpired,
		goGate.KindTokenInvalid:
		return http.StatusUnauthorized
	case goGate.KindAccountLocked:
		return http.StatusLocked
	case goGate.KindSecondFactorRequired, goGate.KindForgeryDetected:
		return http.StatusForbidden
	case goGate.KindRateLimited:
		return http.StatusTooManyRequests
	case goGate.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// writeError renders err. Causes are logged and never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, goGate.ErrPrincipalNotFound) {
		writeProblem(w, http.StatusNotFound, kindNotFound, "principal not found")
		return
	}
	if errors.Is(err, goGate.ErrEngineNotReady) {
		err = goGate.ErrUnavailable
	}

	var e *goGate.Error
	if !errors.As(err, &e) {
		hlog.FromRequest(r).Error().Err(err).Msg("unhandled error")
		e = goGate.ErrInternal
	}
	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("kind", e.Kind.String()).Msg("request failed")
	}

	body := errorBody{Kind: e.Kind.String(), Message: e.Message}
	if e.Kind == goGate.KindInternal {
		body.Message = goGate.ErrInternal.Message
	}
	if secs := retryAfterSeconds(e.RetryAfter); secs > 0 {
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	renderJSON(w, status, body)
}

func writeProblem(w http.ResponseWriter, status int, kind, message string) {
	renderJSON(w, status, errorBody{Kind: kind, Message: message})
}

// decode reads a JSON body of at most limit bytes. Unknown fields are
// allowed so the csrf field may travel in the body.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, kindInvalidRequest, "malformed request body")
		return false
	}
	return true
}
