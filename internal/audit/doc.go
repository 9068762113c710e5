// Package audit buffers security events and hands them to a Sink off the
// request path.
//
// The Engine decides which events exist; this package only delivers them.
// With DropIfFull set, a full buffer drops the event and counts it instead of
// blocking the caller.
package audit
