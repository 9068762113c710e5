package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRelayChannel is the pub/sub channel used when RelayConfig.Channel is
// empty.
const DefaultRelayChannel = "gg:notify"

var (
	// ErrRedisUnavailable wraps publish and subscribe failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrNilDispatcher    = errors.New("notify: nil dispatcher")
)

// Envelope is the wire form of a relayed event. An empty PrincipalID means
// broadcast.
type Envelope struct {
	Node        string          `json:"node"`
	PrincipalID string          `json:"principalId,omitempty"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type RelayConfig struct {
	Channel string
	// Node identifies this process. Envelopes published by the same node are
	// not delivered twice. Defaults to a random UUID.
	Node   string
	Logger zerolog.Logger
}

// Relay delivers every event locally and publishes it for the other nodes.
type Relay struct {
	client  redis.UniversalClient
	local   *Dispatcher
	channel string
	node    string
	log     zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRelay(client redis.UniversalClient, local *Dispatcher, cfg RelayConfig) (*Relay, error) {
	if client == nil {
		return nil, errors.New("notify: nil redis client")
	}
	if local == nil {
		return nil, ErrNilDispatcher
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultRelayChannel
	}
	if cfg.Node == "" {
		cfg.Node = uuid.NewString()
	}
	return &Relay{
		client:  client,
		local:   local,
		channel: cfg.Channel,
		node:    cfg.Node,
		log:     cfg.Logger,
		ready:   make(chan struct{}),
	}, nil
}

func (r *Relay) Node() string { return r.node }

// Subscribed is closed once Run holds an active subscription.
func (r *Relay) Subscribed() <-chan struct{} { return r.ready }

// Broadcast sends to every local channel and publishes for other nodes. The
// local count is returned even when publishing fails.
func (r *Relay) Broadcast(ctx context.Context, event string, payload any) (int, error) {
	n := r.local.Broadcast(ctx, event, payload)
	return n, r.publish(ctx, "", event, payload)
}

// NotifyPrincipal sends to the principal's local channels and publishes for
// other nodes. The returned count covers local sends only.
func (r *Relay) NotifyPrincipal(ctx context.Context, principalID, event string, payload any) (int, error) {
	n := r.local.NotifyPrincipal(ctx, principalID, event, payload)
	return n, r.publish(ctx, principalID, event, payload)
}

func (r *Relay) publish(ctx context.Context, principalID, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg, err := json.Marshal(Envelope{
		Node:        r.node,
		PrincipalID: principalID,
		Event:       event,
		Payload:     raw,
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Run subscribes to the relay channel and delivers envelopes from other nodes
// until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info().Str("channel", r.channel).Str("node", r.node).Msg("notification relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, data string) {
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		r.log.Warn().Err(err).Msg("malformed relay envelope")
		return
	}
	if env.Node == r.node || env.Event == "" {
		return
	}
	if env.PrincipalID == "" {
		r.local.Broadcast(ctx, env.Event, env.Payload)
		return
	}
	r.local.NotifyPrincipal(ctx, env.PrincipalID, env.Event, env.Payload)
}
