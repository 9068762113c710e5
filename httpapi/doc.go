// Package httpapi is the HTTP surface of the gogate server.
//
// It is the only place engine errors are turned into status codes. Every
// error body has the shape {"kind": ..., "message": ..., "retryAfter": ...}
// where kind is the goGate.ErrorKind name and retryAfter, when present, is
// in whole seconds and mirrored in a Retry-After header.
//
// Routes:
//
//	POST /api/auth/sign-in                   identifier + secret, sets gg_session and gg_csrf
//	POST /api/auth/passkey                   second factor for the cookie session, returns a token
//	POST /api/auth/token                     fresh token for a verified cookie session
//	POST /api/auth/logout                    bearer or cookie session
//	POST /api/auth/logout-all                guarded
//	GET  /api/auth/me                        guarded
//	GET  /api/auth/sessions                  guarded, the caller's live sessions
//	GET  /api/presence                       guarded
//	POST /api/notifications                  guarded, admin
//	POST /api/admin/principals/{id}/unlock   guarded, admin
//	GET  /api/admin/security                 guarded, admin, configuration posture
//	GET  /ws                                 WebSocket upgrade
//	GET  /metrics, GET /healthz
//
// Every state-changing route except sign-in also passes the csrf filter.
package httpapi
