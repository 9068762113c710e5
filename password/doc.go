// Package password hashes and verifies secrets.
//
// New hashes are argon2id in PHC format. Legacy bcrypt hashes verify and are
// flagged for upgrade, so the caller can rehash on the next successful sign-in.
// All work goes through a [Pool], which bounds concurrent hashing with a
// weighted semaphore and honors context cancellation while waiting.
//
// This package never stores secrets and never imports other goGate packages.
package password
