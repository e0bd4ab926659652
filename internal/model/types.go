package model

import "encoding/json"

// -----------------------------------------------------------------------------
// Realtime store
// -----------------------------------------------------------------------------

// RealtimeRow is one row of realtime_data: the last-known payload for a
// subscription key plus the set of back-end services holding it.
//
// Invariant: a row exists iff Subscribers is non-empty.
type RealtimeRow struct {
	SubscriptionKey string          // Primary key (canonical subscription key)
	DataType        string          // KLINE, QUOTES, TRADE, ACCOUNT
	Data            json.RawMessage // Last-known upstream payload
	EventTime       int64           // Upstream event time (ms since epoch)
	UpdatedAt       int64           // Row update time (ms since epoch)
	Subscribers     []string        // Ordered unique service identifiers
}

// -----------------------------------------------------------------------------
// Task queue
// -----------------------------------------------------------------------------

// TaskStatus is the lifecycle state of a task row.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskType enumerates the RPC kinds fulfilled by the exchange adapter.
type TaskType string

const (
	TaskGetKlines         TaskType = "get_klines"
	TaskGetQuotes         TaskType = "get_quotes"
	TaskGetSearchSymbols  TaskType = "get_search_symbols"
	TaskGetResolveSymbol  TaskType = "get_resolve_symbol"
	TaskGetSpotAccount    TaskType = "get_spot_account"
	TaskGetFuturesAccount TaskType = "get_futures_account"
)

// Task is one RPC row in the tasks table. One insert is one request; the
// adapter claims it, does the work, and writes the terminal status.
type Task struct {
	ID        int64           // Monotonic primary key
	Type      TaskType        // RPC kind
	Payload   json.RawMessage // JSON request params
	Result    json.RawMessage // JSON result; nil for bulk types and failures
	Status    TaskStatus
	CreatedAt int64 // ms since epoch
	UpdatedAt int64 // ms since epoch
}

// KlinesTaskParams is the payload of a get_klines task.
type KlinesTaskParams struct {
	Symbol   string `json:"symbol"`   // "BINANCE:BTCUSDT"
	Interval string `json:"interval"` // resolution form, e.g. "60"
	FromTime int64  `json:"from_time"`
	ToTime   int64  `json:"to_time"`
	Limit    int    `json:"limit,omitempty"`
}

// QuotesTaskParams is the payload of a get_quotes task.
type QuotesTaskParams struct {
	Symbols []string `json:"symbols"` // "BINANCE:BTCUSDT", "BINANCE:ETHUSDT.PERP"
}

// SearchSymbolsTaskParams is the payload of a get_search_symbols task.
type SearchSymbolsTaskParams struct {
	Query    string `json:"query"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ResolveSymbolTaskParams is the payload of a get_resolve_symbol task.
type ResolveSymbolTaskParams struct {
	Symbol string `json:"symbol"`
}

// -----------------------------------------------------------------------------
// K-line history
// -----------------------------------------------------------------------------

// Kline is one closed (or forming) bar keyed by (symbol, interval, open
// time). Prices arrive as decimal strings and are converted to float64 at
// the exchange boundary.
type Kline struct {
	Symbol             string // "BINANCE:BTCUSDT"
	Interval           string // resolution form, e.g. "60"
	OpenTime           int64  // ms since epoch; part of the primary key
	CloseTime          int64  // ms since epoch
	Open               float64
	High               float64
	Low                float64
	Close              float64
	Volume             float64
	QuoteVolume        float64
	Trades             int64
	TakerBuyBaseVolume float64
	TakerBuyQuoteVol   float64
}

// -----------------------------------------------------------------------------
// Alerts and signals
// -----------------------------------------------------------------------------

// TriggerType governs when a strategy re-evaluates on new data.
type TriggerType string

const (
	TriggerOnceOnly       TriggerType = "once_only"
	TriggerEachKline      TriggerType = "each_kline"
	TriggerEachKlineClose TriggerType = "each_kline_close"
	TriggerEachMinute     TriggerType = "each_minute"
)

// AlertConfig is one user-defined strategy binding.
type AlertConfig struct {
	ID           string // uuid-as-string primary key
	Name         string
	StrategyType string // registered strategy identifier
	Symbol       string // "BINANCE:BTCUSDT"
	Interval     string // resolution form
	TriggerType  TriggerType
	Params       json.RawMessage
	IsEnabled    bool
	CreatedBy    string
	CreatedAt    int64 // ms since epoch
	UpdatedAt    int64 // ms since epoch
}

// SignalValue is the strategy verdict on the latest bar: long, short, or
// none. None is never persisted.
type SignalValue int

const (
	SignalNone SignalValue = iota
	SignalLong
	SignalShort
)

// Bool maps the verdict to the nullable boolean column: true=long,
// false=short. Callers must not invoke it for SignalNone.
func (v SignalValue) Bool() bool { return v == SignalLong }

func (v SignalValue) String() string {
	switch v {
	case SignalLong:
		return "long"
	case SignalShort:
		return "short"
	default:
		return "none"
	}
}

// Signal is one appended row of strategy_signals.
type Signal struct {
	ID           int64
	AlertID      string
	StrategyType string
	Symbol       string
	Interval     string
	TriggerType  TriggerType
	Value        bool // true=long, false=short; none is never written
	Reason       string
	ComputedAt   int64 // ms since epoch
	SourceKey    string
	Metadata     json.RawMessage
}

// -----------------------------------------------------------------------------
// Accounts and exchange info
// -----------------------------------------------------------------------------

// AccountSnapshot is the last-known account state per account type.
type AccountSnapshot struct {
	AccountType string // "spot" or "futures"
	Data        json.RawMessage
	UpdateTime  int64 // exchange-reported time (ms)
	UpdatedAt   int64 // row update time (ms)
}

// SymbolInfo is one tradeable instrument from exchange_info, consulted
// read-only for symbol search and resolve.
type SymbolInfo struct {
	Symbol          string // "BTCUSDT"
	Exchange        string // "BINANCE"
	Market          string // "spot" or "perp"
	BaseAsset       string
	QuoteAsset      string
	Status          string
	PricePrecision  int
	VolumePrecision int
}
