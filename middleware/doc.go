// Package middleware adapts the engine's bearer-token check to net/http.
//
// [Guard.Wrap] reads the token from the Authorization header only, calls
// Authenticate, and passes the resulting [goGate.AuthContext] to a
// [GuardedHandlerFunc] as an argument. Rejections carry a WWW-Authenticate
// header; expired or invalid tokens add error="invalid_token", which clients
// treat as the signal to fetch a new token.
//
// This package makes no authentication decisions of its own.
package middleware
