// Package audit buffers security events and relays them to a [Sink] off the
// request path.
//
// The engine decides which events exist; this package only queues and
// delivers them. Sinks provided here write JSON lines, feed a channel or
// discard.
package audit
