package httpapi

import (
	"errors"
	"net"
	"net/http"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/csrf"
	"github.com/MrEthical07/goGate/middleware"
	"github.com/MrEthical07/goGate/notify"
	"github.com/MrEthical07/goGate/presence"
	"github.com/MrEthical07/goGate/transport/ws"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Config controls the HTTP surface.
type Config struct {
	// CookieHashKey authenticates the session cookie; 32 or 64 bytes.
	CookieHashKey []byte
	// CookieBlockKey encrypts the session cookie when set; 16, 24 or 32 bytes.
	CookieBlockKey []byte
	SecureCookies  bool
	// AllowedOrigins is used for CORS and the WebSocket origin check.
	AllowedOrigins []string
	// AdminPrincipals may send notifications and unlock principals.
	AdminPrincipals []string
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	MaxBodyBytes      int64
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Engine   *goGate.Engine
	Registry *presence.Registry
	Notifier notify.Notifier
	WS       *ws.Server
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

type Server struct {
	cfg      Config
	engine   *goGate.Engine
	registry *presence.Registry
	notifier notify.Notifier
	ws       *ws.Server
	metrics  http.Handler
	log      zerolog.Logger

	cookies  *securecookie.SecureCookie
	csrf     *csrf.Filter
	guard    *middleware.Guard
	admins   map[string]struct{}
	lifetime time.Duration
}

func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("httpapi: engine is required")
	case deps.Registry == nil:
		return nil, errors.New("httpapi: presence registry is required")
	case deps.Notifier == nil:
		return nil, errors.New("httpapi: notifier is required")
	case deps.WS == nil:
		return nil, errors.New("httpapi: websocket server is required")
	}
	if n := len(cfg.CookieHashKey); n != 32 && n != 64 {
		return nil, errors.New("httpapi: CookieHashKey must be 32 or 64 bytes")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}

	lifetime := deps.Engine.Config().Session.Lifetime
	sc := securecookie.New(cfg.CookieHashKey, cfg.CookieBlockKey)
	sc.MaxAge(int(lifetime / time.Second))

	s := &Server{
		cfg:      cfg,
		engine:   deps.Engine,
		registry: deps.Registry,
		notifier: deps.Notifier,
		ws:       deps.WS,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		cookies:  sc,
		admins:   make(map[string]struct{}, len(cfg.AdminPrincipals)),
		lifetime: lifetime,
	}
	for _, id := range cfg.AdminPrincipals {
		s.admins[id] = struct{}{}
	}
	s.csrf = csrf.New(csrf.Config{
		Secure:       cfg.SecureCookies,
		MaxAge:       lifetime,
		MaxBodyBytes: cfg.MaxBodyBytes,
		OnReject:     writeError,
		Report:       deps.Engine.ReportForgery,
	})
	s.guard = middleware.NewGuard(deps.Engine, middleware.WithErrorWriter(writeError))
	return s, nil
}

// Handler returns the routed handler with logging, request ids, CORS and
// client metadata applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("http request")
	}))
	r.Use(chimw.Recoverer)
	r.Use(clientMetadata)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", csrf.DefaultHeaderName},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/ws", s.websocket)

	r.Route("/api", func(r chi.Router) {
		// Sign-in has no session to bind a csrf token to yet.
		r.Post("/auth/sign-in", s.signIn)

		r.Group(func(r chi.Router) {
			r.Use(s.csrf.Middleware)

			r.Post("/auth/passkey", s.passkey)
			r.Post("/auth/token", s.token)
			r.Post("/auth/logout", s.logout)
			r.Post("/auth/logout-all", s.guard.WrapFunc(s.logoutAll))
			r.Get("/auth/me", s.guard.WrapFunc(s.me))
			r.Get("/auth/sessions", s.guard.WrapFunc(s.sessions))
			r.Get("/presence", s.guard.WrapFunc(s.presence))
			r.Post("/notifications", s.guard.WrapFunc(s.admin(s.notify)))
			r.Post("/admin/principals/{id}/unlock", s.guard.WrapFunc(s.admin(s.unlock)))
			r.Get("/admin/security", s.guard.WrapFunc(s.admin(s.securityReport)))
		})
	})
	return r
}

// clientMetadata attaches the peer address and user agent for the throttle
// and audit records.
func clientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := goGate.WithClientIP(r.Context(), ip)
		ctx = goGate.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) admin(next middleware.GuardedHandlerFunc) middleware.GuardedHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, auth goGate.AuthContext) {
		if _, ok := s.admins[auth.PrincipalID]; !ok {
			hlog.FromRequest(r).Warn().
				Bool("security_event", true).
				Str("principal_id", auth.PrincipalID).
				Str("path", r.URL.Path).
				Msg("admin route refused")
			writeProblem(w, http.StatusForbidden, kindForbidden, "admin privileges required")
			return
		}
		next(w, r, auth)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	health := s.engine.Health(r.Context())
	if !health.StoreAvailable {
		writeProblem(w, http.StatusServiceUnavailable, goGate.KindUnavailable.String(), "session store unavailable")
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"connections":    s.registry.Count(),
		"storeLatencyMs": health.StoreLatency.Milliseconds(),
	})
}
