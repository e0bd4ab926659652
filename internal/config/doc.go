// Package config loads YAML configuration for the gateway, exchange
// adapter, and signal worker. ${VAR} references are expanded from the
// environment before parsing.
package config
