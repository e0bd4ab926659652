package config

import "time"

// GatewayConfig is the root configuration for the API gateway.
type GatewayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Database DBConfig       `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Health   HealthConfig   `yaml:"health"`
}

// AdapterConfig is the root configuration for the exchange adapter.
type AdapterConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Database DBConfig       `yaml:"database"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Health   HealthConfig   `yaml:"health"`
}

// WorkerConfig is the root configuration for the signal worker.
type WorkerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Database DBConfig       `yaml:"database"`
	Signals  SignalsConfig  `yaml:"signals"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies a service instance. The ID is the subscriber
// identifier written into realtime_data.subscribers.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the gateway's client-facing WebSocket listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Path            string        `yaml:"path"`
	ReadLimit       int64         `yaml:"read_limit"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig holds per-session limits.
type SessionConfig struct {
	SendQueueSize int           `yaml:"send_queue_size"`
	TaskTimeout   time.Duration `yaml:"task_timeout"` // correlation abandon, not task cancel
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ExchangeConfig holds upstream Binance endpoints and connection policy.
type ExchangeConfig struct {
	SpotRestURL      string        `yaml:"spot_rest_url"`
	SpotWSURL        string        `yaml:"spot_ws_url"`
	FuturesRestURL   string        `yaml:"futures_rest_url"`
	FuturesWSURL     string        `yaml:"futures_ws_url"`
	APIKey           string        `yaml:"api_key"`
	APISecret        string        `yaml:"api_secret"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
}

// TasksConfig holds task-worker settings for the adapter.
type TasksConfig struct {
	Concurrency int `yaml:"concurrency"`
	KlinePage   int `yaml:"kline_page"` // rows per upstream kline request
}

// SignalsConfig holds signal-worker settings.
type SignalsConfig struct {
	BufferSize      int           `yaml:"buffer_size"`      // closed bars kept per series
	BackfillWait    time.Duration `yaml:"backfill_wait"`    // soft wait per fill iteration
	BackfillRetry   time.Duration `yaml:"backfill_retry"`   // sleep between fill iterations
	BackfillLimit   int           `yaml:"backfill_limit"`   // rows requested per fill task
	EvalConcurrency int           `yaml:"eval_concurrency"` // strategy evaluation workers
	GapFactor       float64       `yaml:"gap_factor"`       // gap threshold in intervals
}

// HealthConfig holds the liveness HTTP endpoint.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
