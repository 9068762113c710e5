package goGate

import (
	"io"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/rs/zerolog"
)

type (
	// AuditEvent is one security audit record.
	AuditEvent = internalaudit.Event
	// AuditSink receives audit events from the engine's dispatcher goroutine.
	AuditSink = internalaudit.Sink
	// NoOpSink discards events.
	NoOpSink = internalaudit.NoOpSink
	// ChannelSink delivers events to a buffered channel.
	ChannelSink = internalaudit.ChannelSink
	// JSONWriterSink writes newline-delimited JSON.
	JSONWriterSink = internalaudit.JSONWriterSink
	// ZerologSink writes events as structured log lines.
	ZerologSink = internalaudit.ZerologSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(log)
}
