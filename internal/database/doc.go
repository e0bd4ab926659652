// Package database provides the PostgreSQL connection pool, the embedded
// schema bootstrap, and dedicated LISTEN connections.
//
// The store is used both as a cache (realtime_data, klines_history) and as
// an event bus: triggers installed by the bootstrap publish every relevant
// insert/update/delete on a NOTIFY channel. Application code never calls
// pg_notify directly; it writes rows and the database publishes.
package database
