// Package subkey defines the canonical subscription key ("fingerprint")
// identifying one data series, e.g. "BINANCE:BTCUSDT@KLINE_1".
//
// The key is the primary key of the realtime_data table and the routing
// key for gateway broadcasts. Keys prefixed "SIGNAL:" are gateway-local:
// they are never persisted and never forwarded upstream.
package subkey
