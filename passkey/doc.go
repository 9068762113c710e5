// Package passkey verifies the second authentication factor: an RFC 6238
// TOTP code (github.com/pquerna/otp) or a static numeric PIN stored as an
// argon2id hash.
package passkey
