// Package signal implements the signal worker: it mirrors kline streams
// for every enabled alert config into in-memory bar buffers, keeps those
// buffers full and gap-free via the task queue, and runs the configured
// strategies whenever their trigger policy fires. Non-null verdicts are
// appended to strategy_signals; the insert trigger publishes signal.new.
package signal
