// Package model defines the persisted row types shared by the gateway,
// exchange adapter, and signal worker.
package model
