// Package presence tracks which principals hold open duplex channels.
//
// A [Registry] owns two maps: connection id to channel, and presence key to
// the set of connection ids under that key. The key is the principal id, or
// the channel's own id for anonymous connections. Every change to presence is
// broadcast to all registered channels as a [EventPresence] event carrying the
// sorted []View, encoded once per change as a json.RawMessage and enqueued
// while the registry still holds its lock so every channel observes changes in
// the same order.
//
// Channel.Send must not block. Implementations enqueue onto a per-connection
// buffer and report an error when the buffer is full.
package presence
