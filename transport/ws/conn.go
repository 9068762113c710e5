package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/goGate/presence"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrClosed    = errors.New("ws: connection closed")
	ErrQueueFull = errors.New("ws: send queue full")
)

// Frame is one message on the wire.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Registry is the part of presence.Registry a connection needs.
type Registry interface {
	Connect(ch presence.Channel, principalID, label string) (presence.Connection, error)
	Disconnect(id string) bool
}

// Conn is one accepted WebSocket. It implements presence.Channel.
type Conn struct {
	id       string
	ws       *websocket.Conn
	cfg      Config
	registry Registry
	limiter  *rate.Limiter
	log      zerolog.Logger

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func (c *Conn) ID() string { return c.id }

// Send encodes the frame and enqueues it. It never blocks: a full queue
// drops the frame and returns ErrQueueFull.
func (c *Conn) Send(event string, payload any) error {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// encodeFrame copies a json.RawMessage payload into the frame as is, so a
// broadcast encoded once is not re-encoded per connection.
func encodeFrame(event string, payload any) ([]byte, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok || len(raw) == 0 {
		return json.Marshal(Frame{Event: event, Data: payload})
	}
	name, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(`{"event":,"data":}`)+len(name)+len(raw))
	msg = append(msg, `{"event":`...)
	msg = append(msg, name...)
	msg = append(msg, `,"data":`...)
	msg = append(msg, raw...)
	return append(msg, '}'), nil
}

// Close removes the connection from the registry and then stops the writer.
// Once Close returns no targeted send can reach this connection. Safe to call
// more than once and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if c.registry != nil {
			c.registry.Disconnect(c.id)
		}
		close(c.done)
	})
}

// Done is closed when Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump returns when the peer goes away, the connection is closed, or the
// peer exceeds its inbound rate.
func (c *Conn) readPump(handle func(*Conn, Inbound)) {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		if !c.limiter.Allow() {
			c.log.Warn().Bool("security_event", true).Msg("websocket inbound rate exceeded")
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		}
		in, ok := parseInbound(msg)
		if !ok {
			continue
		}
		handle(c, in)
	}
}
