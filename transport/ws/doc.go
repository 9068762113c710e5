// Package ws is the WebSocket implementation of presence.Channel.
//
// Each accepted connection gets a buffered send queue drained by one writer
// goroutine, so Send never waits on the network. Frames in both directions
// are JSON objects {"event": ..., "data": ...}. Inbound frames are rate
// limited per connection; a client that exceeds the limit is closed with
// close code 1008.
package ws
