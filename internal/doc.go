// Package internal holds random identifier and token helpers shared by the
// engine and the HTTP layer.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - log: zerolog construction for the binary
//   - rate: Redis-backed per-IP sign-in throttle
//   - security: configuration posture report
//   - simulator: synthetic sensor readings pushed through the notifier
package internal
