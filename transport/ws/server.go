package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

type Config struct {
	// AllowedOrigins lists the Origin values accepted at handshake. Empty
	// means same host only. Requests without an Origin header are accepted.
	AllowedOrigins []string
	// SendBuffer is the per-connection queue length.
	SendBuffer      int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	// InboundRate and InboundBurst bound client frames per connection.
	InboundRate  rate.Limit
	InboundBurst int
	Logger       zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4096
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 5
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 10
	}
}

// Identity is the handshake metadata. The caller proves PrincipalID before
// calling Serve; an empty PrincipalID makes the connection anonymous.
type Identity struct {
	PrincipalID string
	Label       string
}

// Inbound is a client frame. Data is the raw JSON of the "data" member.
type Inbound struct {
	Event string
	Data  json.RawMessage
}

func parseInbound(msg []byte) (Inbound, bool) {
	if !gjson.ValidBytes(msg) {
		return Inbound{}, false
	}
	event := gjson.GetBytes(msg, "event")
	if event.Type != gjson.String || event.Str == "" {
		return Inbound{}, false
	}
	in := Inbound{Event: event.Str}
	if data := gjson.GetBytes(msg, "data"); data.Exists() {
		in.Data = json.RawMessage(data.Raw)
	}
	return in, true
}

// Handler receives client frames. The default answers "ping" with "pong".
type Handler func(c *Conn, in Inbound)

func defaultHandler(c *Conn, in Inbound) {
	if in.Event == "ping" {
		_ = c.Send("pong", nil)
	}
}

// Server upgrades requests and owns the connections it accepted.
type Server struct {
	cfg      Config
	registry Registry
	upgrader websocket.Upgrader
	handler  Handler

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewServer(registry Registry, cfg Config) (*Server, error) {
	if registry == nil {
		return nil, errors.New("ws: nil registry")
	}
	cfg.setDefaults()
	s := &Server{
		cfg:      cfg,
		registry: registry,
		handler:  defaultHandler,
		conns:    make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = s.checkOrigin
	}
	return s, nil
}

// HandleFunc replaces the inbound frame handler.
func (s *Server) HandleFunc(h Handler) {
	if h != nil {
		s.handler = h
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Serve upgrades the request, registers the connection and blocks until it
// closes. The upgrader has already written an HTTP error when Serve returns
// an upgrade error.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, id Identity) error {
	log := zerolog.Ctx(r.Context())
	if log.GetLevel() == zerolog.Disabled {
		log = &s.cfg.Logger
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade rejected")
		return err
	}

	c := &Conn{
		id:         uuid.NewString(),
		ws:         wsConn,
		cfg:        s.cfg,
		registry:   s.registry,
		limiter:    rate.NewLimiter(s.cfg.InboundRate, s.cfg.InboundBurst),
		send:       make(chan []byte, s.cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.log = log.With().Str("connection_id", c.id).Str("principal_id", id.PrincipalID).Logger()

	go c.writePump()
	if _, err := s.registry.Connect(c, id.PrincipalID, id.Label); err != nil {
		c.registry = nil
		c.Close()
		<-c.writerDone
		return err
	}
	s.track(c)
	c.log.Debug().Msg("websocket connected")

	c.readPump(s.handler)
	c.Close()
	<-c.writerDone
	s.untrack(c)
	c.log.Debug().Msg("websocket closed")
	return nil
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// Count returns the number of connections currently served.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll closes every open connection. http.Server.Shutdown does not reach
// hijacked connections, so call this during shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
