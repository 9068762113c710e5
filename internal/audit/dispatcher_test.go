package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherCloseFlushes(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "sign_in_failure"})
	}
	d.Close()
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered, got %d", got)
	}

	// Emit after Close is ignored.
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event blocks in the sink, one fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
		time.Sleep(time.Millisecond)
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}
	close(sink.gate)
	d.Close()
}

type panicSink struct {
	count atomic.Int64
}

func (s *panicSink) Emit(_ context.Context, ev Event) {
	if ev.EventType == "boom" {
		panic("sink failure")
	}
	s.count.Add(1)
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	var logs bytes.Buffer
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, Logger: zerolog.New(&logs)}, sink)
	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "sign_in_success"})
	d.Close()

	if got := sink.count.Load(); got != 1 {
		t.Fatalf("expected the event after the panic to arrive, got %d", got)
	}
	if d.Dropped() != 1 || d.Delivered() != 1 {
		t.Fatalf("dropped=%d delivered=%d", d.Dropped(), d.Delivered())
	}
	if !strings.Contains(logs.String(), "audit sink panicked") {
		t.Fatalf("expected panic to be logged, got %q", logs.String())
	}
}

func TestDispatcherLogsFirstDrop(t *testing.T) {
	var logs bytes.Buffer
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zerolog.New(&logs)}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
		time.Sleep(time.Millisecond)
	}
	close(sink.gate)
	d.Close()

	if n := strings.Count(logs.String(), "dropping event"); n != 1 {
		t.Fatalf("expected one throttled drop warning, got %d: %s", n, logs.String())
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "token_issued", PrincipalID: "p1", Success: true})
	s.Emit(context.Background(), Event{EventType: "token_invalid", Error: "TokenInvalid"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != "token_issued" || ev.PrincipalID != "p1" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZerologSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := NewZerologSink(zerolog.New(&buf))
	s.Emit(context.Background(), Event{
		EventType: "sign_in_failure",
		IP:        "192.0.2.1",
		Metadata:  map[string]string{"reason": "bad_secret"},
	})

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["level"] != "warn" || out["event"] != "sign_in_failure" || out["reason"] != "bad_secret" {
		t.Fatalf("unexpected log line %v", out)
	}
	if out["audit"] != true {
		t.Fatalf("expected audit=true, got %v", out["audit"])
	}
}
