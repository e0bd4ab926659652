// Package notify is the consumer side of the database notify bus.
//
// Publishing happens inside database triggers (see internal/database); this
// package only listens. A Listener owns one dedicated connection — never a
// pooled one, because listen registrations are per-connection state — and
// fans incoming notifications out to per-channel handlers.
//
// Delivery is at-least-once. Duplicates are rare but possible; handlers
// must be idempotent. A malformed payload is logged and dropped, never
// fatal to the listener.
package notify
