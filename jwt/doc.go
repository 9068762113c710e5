// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry sub (principal id), sid (session id), iat, exp, jti, iss and
// aud. Verification runs with zero leeway against an injectable clock, so
// expiry is a hard boundary. There is no refresh token; clients derive a new
// access token from their verified session instead.
package jwt
