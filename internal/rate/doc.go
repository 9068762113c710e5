// Package rate implements the per-IP sign-in throttle.
//
// Counters are fixed windows in Redis: the first failure from an address
// creates the key with the window as its TTL, later failures increment it.
// Once the count reaches the configured maximum, Check reports the remaining
// window as the retry-after until the key expires.
//
// The throttle is independent of per-principal lockout. It bounds how fast a
// single client can spray identifiers; lockout bounds guesses against one
// principal.
package rate
