package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// load reads a YAML file, expands ${VAR} environment references, and
// unmarshals into dst.
func load(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), dst); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// LoadGateway loads, defaults, and validates a gateway config.
func LoadGateway(path string) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadAdapter loads, defaults, and validates an exchange-adapter config.
func LoadAdapter(path string) (*AdapterConfig, error) {
	var cfg AdapterConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWorker loads, defaults, and validates a signal-worker config.
func LoadWorker(path string) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
