package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8765
	DefaultServerPath      = "/ws"
	DefaultReadLimit       = 1 << 20 // 1 MiB per frame
	DefaultWriteTimeout    = 5 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultPongTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultSendQueueSize = 256
	DefaultTaskTimeout   = 30 * time.Second

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultSpotRestURL      = "https://api.binance.com"
	DefaultSpotWSURL        = "wss://stream.binance.com:9443/ws"
	DefaultFuturesRestURL   = "https://fapi.binance.com"
	DefaultFuturesWSURL     = "wss://fstream.binance.com/ws"
	DefaultExchangeTimeout  = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultReconnectBackoff = 2 * time.Second
	DefaultReadTimeout      = 90 * time.Second

	DefaultTaskConcurrency = 4
	DefaultKlinePage       = 1000

	DefaultSignalBufferSize = 280
	DefaultBackfillWait     = 5 * time.Second
	DefaultBackfillRetry    = 2 * time.Second
	DefaultBackfillLimit    = 1000
	DefaultEvalConcurrency  = 4
	DefaultGapFactor        = 1.5

	DefaultHealthPort = 8080
	DefaultHealthPath = "/healthz"
)

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func applyHealthDefaults(h *HealthConfig) {
	if h.Port == 0 {
		h.Port = DefaultHealthPort
	}
	if h.Path == "" {
		h.Path = DefaultHealthPath
	}
}

func (c *GatewayConfig) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultServerPath
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = DefaultPongTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Session.SendQueueSize == 0 {
		c.Session.SendQueueSize = DefaultSendQueueSize
	}
	if c.Session.TaskTimeout == 0 {
		c.Session.TaskTimeout = DefaultTaskTimeout
	}
	applyDBDefaults(&c.Database)
	applyHealthDefaults(&c.Health)
}

func (c *AdapterConfig) applyDefaults() {
	if c.Exchange.SpotRestURL == "" {
		c.Exchange.SpotRestURL = DefaultSpotRestURL
	}
	if c.Exchange.SpotWSURL == "" {
		c.Exchange.SpotWSURL = DefaultSpotWSURL
	}
	if c.Exchange.FuturesRestURL == "" {
		c.Exchange.FuturesRestURL = DefaultFuturesRestURL
	}
	if c.Exchange.FuturesWSURL == "" {
		c.Exchange.FuturesWSURL = DefaultFuturesWSURL
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultExchangeTimeout
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = DefaultMaxRetries
	}
	if c.Exchange.ReconnectBackoff == 0 {
		c.Exchange.ReconnectBackoff = DefaultReconnectBackoff
	}
	if c.Exchange.PingInterval == 0 {
		c.Exchange.PingInterval = DefaultPingInterval
	}
	if c.Exchange.ReadTimeout == 0 {
		c.Exchange.ReadTimeout = DefaultReadTimeout
	}
	if c.Tasks.Concurrency == 0 {
		c.Tasks.Concurrency = DefaultTaskConcurrency
	}
	if c.Tasks.KlinePage == 0 {
		c.Tasks.KlinePage = DefaultKlinePage
	}
	applyDBDefaults(&c.Database)
	applyHealthDefaults(&c.Health)
}

func (c *WorkerConfig) applyDefaults() {
	if c.Signals.BufferSize == 0 {
		c.Signals.BufferSize = DefaultSignalBufferSize
	}
	if c.Signals.BackfillWait == 0 {
		c.Signals.BackfillWait = DefaultBackfillWait
	}
	if c.Signals.BackfillRetry == 0 {
		c.Signals.BackfillRetry = DefaultBackfillRetry
	}
	if c.Signals.BackfillLimit == 0 {
		c.Signals.BackfillLimit = DefaultBackfillLimit
	}
	if c.Signals.EvalConcurrency == 0 {
		c.Signals.EvalConcurrency = DefaultEvalConcurrency
	}
	if c.Signals.GapFactor == 0 {
		c.Signals.GapFactor = DefaultGapFactor
	}
	applyDBDefaults(&c.Database)
	applyHealthDefaults(&c.Health)
}
