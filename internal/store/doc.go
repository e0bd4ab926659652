// Package store holds the repositories over the shared database. Every
// write that matters to another service goes through here, and the
// database's triggers turn those writes into notify-bus events.
package store
