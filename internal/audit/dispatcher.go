package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// dropLogEvery throttles the drop warning to one line per this many drops.
const dropLogEvery = 1000

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Logger     zerolog.Logger
}

// Dispatcher forwards security events to a Sink from one goroutine so that
// a slow sink never stalls sign-in.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	log   zerolog.Logger
	queue chan Event
	stop  chan struct{}
	wg    sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when cfg.Enabled is false;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		log:   cfg.Logger,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	ctx := context.Background()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// deliver hands ev to the sink. A panicking sink loses that event only.
func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.dropped.Add(1)
			d.log.Error().Interface("panic", r).Str("event_type", ev.EventType).Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(ctx, ev)
	d.delivered.Add(1)
}

// Emit queues ev. With DropIfFull a full buffer counts a drop; otherwise
// Emit waits for space, ctx cancellation or Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.drop(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev)
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(ev Event) {
	n := d.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		d.log.Warn().
			Uint64("dropped_total", n).
			Str("event_type", ev.EventType).
			Msg("audit buffer full, dropping event")
	}
}

// Close stops accepting events, flushes what was already queued and waits
// for the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
