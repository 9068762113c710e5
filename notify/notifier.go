package notify

import "context"

// Notifier is the delivery surface handlers depend on. *Relay implements it;
// Local adapts a Dispatcher for single-node deployments.
type Notifier interface {
	Broadcast(ctx context.Context, event string, payload any) (int, error)
	NotifyPrincipal(ctx context.Context, principalID, event string, payload any) (int, error)
}

var _ Notifier = (*Relay)(nil)

type local struct{ d *Dispatcher }

// Local returns a Notifier that only reaches channels in this process.
func Local(d *Dispatcher) Notifier { return local{d: d} }

func (l local) Broadcast(ctx context.Context, event string, payload any) (int, error) {
	return l.d.Broadcast(ctx, event, payload), nil
}

func (l local) NotifyPrincipal(ctx context.Context, principalID, event string, payload any) (int, error) {
	return l.d.NotifyPrincipal(ctx, principalID, event, payload), nil
}
