// Package goGate is the identity and session core of the platform: password
// sign-in with account lockout, a provisional session that must clear a
// second-factor passkey, and short-lived bearer tokens for everything after.
//
// [Engine] is safe for concurrent use once built with [Builder.Build]. It owns
// the principal store, session store, hashing pool and token manager; HTTP,
// WebSocket and presence concerns live in sub-packages and call into it.
//
// Every Engine method returns either nil or an *[Error] whose Kind is one of
// the closed set of [ErrorKind] values. Transports translate kinds to status
// codes; the engine itself knows nothing about HTTP.
//
// Authentication state moves Unauthenticated -> FirstFactorOnly ->
// FullyAuthenticated, and back to Unauthenticated on logout or expiry.
// AccountLocked is reachable from Unauthenticated and clears itself when the
// lock elapses or an administrator calls [Engine.UnlockPrincipal].
package goGate
