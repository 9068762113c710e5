// Package session provides Redis-backed persistence for authentication sessions.
//
// # Binary encoding
//
// Sessions are stored as a compact versioned blob (see [Encode]). The second-factor
// flag is flipped in place by a Lua compare-and-set so concurrent passkey
// verifications cannot lose an update.
//
// # Key layout
//
//   - <prefix>:s:<sessionID>   encoded session, PX set to the session lifetime
//   - <prefix>:p:<principalID> set of session ids owned by the principal
//
// # What this package must NOT do
//
//   - Import goGate, jwt, or any transport package (no upward imports).
//   - Decide whether a session grants access; the Engine does that.
package session
