// Package csrf rejects cross-site request forgery on state-changing routes.
//
// The server sets a random token cookie at sign-in. Every POST, PUT, PATCH or
// DELETE must send the same value in the X-CSRF-Token header, or as a _csrf
// form field or top-level JSON key. Values are compared in constant time and
// a mismatch is answered with 403 before the handler runs.
package csrf
