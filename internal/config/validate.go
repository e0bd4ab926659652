package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required gateway fields are set.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if err := c.Database.validate("database"); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Session.SendQueueSize < 1 {
		return errors.New("session.send_queue_size must be >= 1")
	}
	return c.Health.validate()
}

// Validate checks that all required adapter fields are set.
func (c *AdapterConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if err := c.Database.validate("database"); err != nil {
		return err
	}
	if c.Tasks.Concurrency < 1 {
		return errors.New("tasks.concurrency must be >= 1")
	}
	if c.Tasks.KlinePage < 1 || c.Tasks.KlinePage > 1000 {
		return fmt.Errorf("tasks.kline_page must be between 1 and 1000, got %d", c.Tasks.KlinePage)
	}
	return c.Health.validate()
}

// Validate checks that all required worker fields are set.
func (c *WorkerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if err := c.Database.validate("database"); err != nil {
		return err
	}
	if c.Signals.BufferSize < 2 {
		return errors.New("signals.buffer_size must be >= 2")
	}
	if c.Signals.GapFactor <= 1 {
		return errors.New("signals.gap_factor must be > 1")
	}
	return c.Health.validate()
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	return nil
}

func (h *HealthConfig) validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", h.Port)
	}
	return nil
}
