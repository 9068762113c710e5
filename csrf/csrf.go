package csrf

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	DefaultCookieName = "gg_csrf"
	DefaultHeaderName = "X-CSRF-Token"
	DefaultFieldName  = "_csrf"

	tokenLength = 32
)

var (
	errNoCookie = errors.New("no csrf cookie")
	errNoToken  = errors.New("no csrf token in request")
	errMismatch = errors.New("csrf token mismatch")
)

// Config configures a Filter. Zero values take the defaults above.
type Config struct {
	CookieName string
	HeaderName string
	// FieldName is the form field or top-level JSON key checked when the
	// header is absent.
	FieldName string
	Path      string
	MaxAge    time.Duration
	Secure    bool
	SameSite  http.SameSite
	// MaxBodyBytes bounds how much of a JSON body is buffered for the field
	// fallback.
	MaxBodyBytes int64
	// OnReject writes the 403. The error matches goGate.ErrForgeryDetected.
	OnReject func(w http.ResponseWriter, r *http.Request, err error)
	// Report is called once per rejected request, e.g. Engine.ReportForgery.
	Report func(ctx context.Context, route string)
}

// Filter implements double-submit cookie protection: a state-changing
// request must echo the cookie value in a header or body field.
type Filter struct {
	cfg Config
}

func New(cfg Config) *Filter {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 12 * time.Hour
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteStrictMode
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.OnReject == nil {
		cfg.OnReject = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		}
	}
	return &Filter{cfg: cfg}
}

// Protected reports whether method changes state. GET, HEAD, OPTIONS and
// TRACE pass through the filter unchecked.
func Protected(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// Issue sets a fresh token cookie and returns the token. The cookie is
// readable by scripts so the client can copy it into the header.
func (f *Filter) Issue(w http.ResponseWriter) (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	http.SetCookie(w, &http.Cookie{
		Name:     f.cfg.CookieName,
		Value:    token,
		Path:     f.cfg.Path,
		MaxAge:   int(f.cfg.MaxAge / time.Second),
		Secure:   f.cfg.Secure,
		SameSite: f.cfg.SameSite,
	})
	return token, nil
}

// Clear expires the token cookie.
func (f *Filter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     f.cfg.CookieName,
		Value:    "",
		Path:     f.cfg.Path,
		MaxAge:   -1,
		Secure:   f.cfg.Secure,
		SameSite: f.cfg.SameSite,
	})
}

// Check validates r. Requests with a safe method always pass.
func (f *Filter) Check(r *http.Request) error {
	if !Protected(r.Method) {
		return nil
	}

	cookie, err := r.Cookie(f.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return forgery(errNoCookie)
	}

	submitted := r.Header.Get(f.cfg.HeaderName)
	if submitted == "" {
		submitted, err = f.fromBody(r)
		if err != nil {
			return forgery(err)
		}
	}
	if submitted == "" {
		return forgery(errNoToken)
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
		return forgery(errMismatch)
	}
	return nil
}

// fromBody reads the token from a form field or a top-level JSON key. A JSON
// body is restored so the handler can decode it again.
func (f *Filter) fromBody(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return r.PostFormValue(f.cfg.FieldName), nil
	case "application/json":
		body, err := io.ReadAll(io.LimitReader(r.Body, f.cfg.MaxBodyBytes+1))
		if err != nil {
			return "", err
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if int64(len(body)) > f.cfg.MaxBodyBytes {
			return "", fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBodyBytes)
		}
		if !gjson.ValidBytes(body) {
			return "", nil
		}
		field := gjson.GetBytes(body, gjson.Escape(f.cfg.FieldName))
		if field.Type != gjson.String {
			return "", nil
		}
		return field.Str, nil
	}
	return "", nil
}

// Middleware rejects forged requests with 403 before next runs.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := f.Check(r); err != nil {
			zerolog.Ctx(r.Context()).Warn().
				Bool("security_event", true).
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("forged request rejected")
			if f.cfg.Report != nil {
				f.cfg.Report(r.Context(), r.URL.Path)
			}
			f.cfg.OnReject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forgery(cause error) error {
	return &goGate.Error{Kind: goGate.KindForgeryDetected, Message: goGate.ErrForgeryDetected.Message, Err: cause}
}
