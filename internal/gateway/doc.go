// Package gateway implements the client-facing WebSocket service: the
// session hub, the subscription registry, the request router with its
// three-phase ack, and the notification dispatcher that turns notify-bus
// events into per-session broadcasts.
package gateway
