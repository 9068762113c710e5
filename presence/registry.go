package presence

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventPresence is the event name of presence broadcasts.
const EventPresence = "presence"

var (
	ErrNilChannel       = errors.New("presence: nil channel")
	ErrEmptyChannelID   = errors.New("presence: channel id is empty")
	ErrDuplicateChannel = errors.New("presence: channel already registered")
)

// Channel is one open duplex connection.
type Channel interface {
	ID() string
	// Send enqueues an event. It must return without waiting on the network.
	// Presence payloads arrive as a json.RawMessage shared by every channel
	// of the broadcast and must not be modified.
	Send(event string, payload any) error
}

// Connection describes a registered channel.
type Connection struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principalId,omitempty"`
	Label       string    `json:"label"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Anonymous reports whether no principal was claimed at handshake.
func (c Connection) Anonymous() bool { return c.PrincipalID == "" }

// Entry is one presence key and its open connections.
type Entry struct {
	Key              string
	Label            string
	FirstConnectedAt time.Time
	Connections      []string
}

// View is the public presence record broadcast to clients.
type View struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Since time.Time `json:"since"`
}

type member struct {
	ch   Channel
	conn Connection
}

type entry struct {
	label string
	first time.Time
	ids   map[string]struct{}
}

// Registry is safe for concurrent use. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	now func() time.Time
	log zerolog.Logger

	mu      sync.RWMutex
	members map[string]member
	entries map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now for connect timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:     time.Now,
		log:     zerolog.Nop(),
		members: make(map[string]member),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers ch under principalID, or under ch.ID() when principalID
// is empty, and broadcasts the new presence list to every channel, ch
// included.
func (r *Registry) Connect(ch Channel, principalID, label string) (Connection, error) {
	if ch == nil {
		return Connection{}, ErrNilChannel
	}
	id := ch.ID()
	if id == "" {
		return Connection{}, ErrEmptyChannelID
	}
	key := principalID
	if key == "" {
		key = id
	}
	if label == "" {
		label = key
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; ok {
		return Connection{}, ErrDuplicateChannel
	}

	conn := Connection{
		ID:          id,
		PrincipalID: principalID,
		Label:       label,
		ConnectedAt: r.now(),
	}
	r.members[id] = member{ch: ch, conn: conn}

	e, ok := r.entries[key]
	if !ok {
		e = &entry{label: label, first: conn.ConnectedAt, ids: make(map[string]struct{}, 1)}
		r.entries[key] = e
	}
	e.ids[id] = struct{}{}

	r.log.Debug().
		Str("connection_id", id).
		Str("principal_id", principalID).
		Int("connections", len(e.ids)).
		Msg("channel connected")

	r.broadcastLocked()
	return conn, nil
}

// Disconnect removes the channel with the given id. A presence key whose last
// connection closes leaves presence immediately. It reports false, and sends
// nothing, when id was not registered.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return false
	}
	delete(r.members, id)

	key := m.conn.PrincipalID
	if key == "" {
		key = id
	}
	if e, ok := r.entries[key]; ok {
		delete(e.ids, id)
		if len(e.ids) == 0 {
			delete(r.entries, key)
		}
	}

	r.log.Debug().
		Str("connection_id", id).
		Str("principal_id", m.conn.PrincipalID).
		Msg("channel disconnected")

	r.broadcastLocked()
	return true
}

// broadcastLocked must be called with mu held for writing.
func (r *Registry) broadcastLocked() {
	raw, err := json.Marshal(r.viewsLocked())
	if err != nil {
		r.log.Error().Err(err).Msg("presence list not encoded")
		return
	}
	payload := json.RawMessage(raw)
	for id, m := range r.members {
		if err := m.ch.Send(EventPresence, payload); err != nil {
			r.log.Debug().Err(err).Str("connection_id", id).Msg("presence send dropped")
		}
	}
}

func (r *Registry) viewsLocked() []View {
	views := make([]View, 0, len(r.entries))
	for key, e := range r.entries {
		views = append(views, View{ID: key, Label: e.label, Since: e.first})
	}
	slices.SortFunc(views, func(a, b View) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return views
}

// List returns the current presence list.
func (r *Registry) List() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewsLocked()
}

// Entry returns a copy of the presence entry for key.
func (r *Registry) Entry(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	ids := make([]string, 0, len(e.ids))
	for id := range e.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return Entry{Key: key, Label: e.label, FirstConnectedAt: e.first, Connections: ids}, true
}

// Lookup returns the connection registered under id.
func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m.conn, ok
}

// Channels returns a point-in-time copy of every registered channel.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.ch)
	}
	return out
}

// ChannelsFor returns a point-in-time copy of the channels claimed by
// principalID. Anonymous connections are never returned.
func (r *Registry) ChannelsFor(principalID string) []Channel {
	if principalID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[principalID]
	if !ok {
		return nil
	}
	out := make([]Channel, 0, len(e.ids))
	for id := range e.ids {
		m := r.members[id]
		if m.conn.PrincipalID != principalID {
			continue
		}
		out = append(out, m.ch)
	}
	return out
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Len returns the number of presence entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
