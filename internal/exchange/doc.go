// Package exchange talks to Binance. The REST client serves the task
// queue (history, quotes, accounts, instrument catalogue); the stream
// multiplexer keeps one combined-stream WebSocket per market aligned with
// the realtime store's key set and writes every upstream event back
// through it.
package exchange
