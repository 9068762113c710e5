package notify

import (
	"context"

	"github.com/MrEthical07/goGate/presence"
	"github.com/rs/zerolog"
)

// Source yields point-in-time channel snapshots. *presence.Registry
// implements it.
type Source interface {
	Channels() []presence.Channel
	ChannelsFor(principalID string) []presence.Channel
}

// Dispatcher is best-effort: a failed send is logged and not retried.
type Dispatcher struct {
	source Source
	log    zerolog.Logger
	onSend func(delivered bool)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithSendHook is called once per attempted send, e.g. to count deliveries.
func WithSendHook(fn func(delivered bool)) Option {
	return func(d *Dispatcher) { d.onSend = fn }
}

func NewDispatcher(source Source, opts ...Option) *Dispatcher {
	d := &Dispatcher{source: source, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Broadcast sends to every registered channel and returns the number of sends
// attempted. A channel closing concurrently may miss the event.
func (d *Dispatcher) Broadcast(ctx context.Context, event string, payload any) int {
	return d.send(ctx, d.source.Channels(), event, payload)
}

// NotifyPrincipal sends once per channel owned by principalID. A principal
// with no open channel is not an error: nothing is sent and 0 is returned.
// Persisting events for offline principals is the caller's concern.
func (d *Dispatcher) NotifyPrincipal(ctx context.Context, principalID, event string, payload any) int {
	chans := d.source.ChannelsFor(principalID)
	if len(chans) == 0 {
		d.log.Debug().Str("principal_id", principalID).Str("event", event).Msg("no open channels")
		return 0
	}
	return d.send(ctx, chans, event, payload)
}

func (d *Dispatcher) send(ctx context.Context, chans []presence.Channel, event string, payload any) int {
	attempted := 0
	for _, ch := range chans {
		if ctx.Err() != nil {
			break
		}
		attempted++
		err := ch.Send(event, payload)
		if err != nil {
			d.log.Debug().Err(err).Str("connection_id", ch.ID()).Str("event", event).Msg("notification dropped")
		}
		if d.onSend != nil {
			d.onSend(err == nil)
		}
	}
	return attempted
}
