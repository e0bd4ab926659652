package protocol

import "encoding/json"

// Request bodies. Domain bodies keep their snake_case field names; only
// the envelope is camelCase.

// SubscribeBody is the data of SUBSCRIBE and UNSUBSCRIBE. For UNSUBSCRIBE,
// All=true drops every subscription held by the session.
type SubscribeBody struct {
	Subscriptions []string `json:"subscriptions"`
	All           bool     `json:"all,omitempty"`
}

// KlinesBody is the data of GET_KLINES.
type KlinesBody struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	FromTime int64  `json:"from_time"`
	ToTime   int64  `json:"to_time"`
}

// QuotesBody is the data of GET_QUOTES.
type QuotesBody struct {
	Symbols []string `json:"symbols"`
}

// SearchSymbolsBody is the data of GET_SEARCH_SYMBOLS.
type SearchSymbolsBody struct {
	Query    string `json:"query"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ResolveSymbolBody is the data of GET_RESOLVE_SYMBOL.
type ResolveSymbolBody struct {
	Symbol string `json:"symbol"`
}

// AlertConfigBody is the data of CREATE/UPDATE_ALERT_CONFIG.
type AlertConfigBody struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	StrategyType string          `json:"strategy_type"`
	Symbol       string          `json:"symbol"`
	Interval     string          `json:"interval"`
	TriggerType  string          `json:"trigger_type"`
	Params       json.RawMessage `json:"params"`
	IsEnabled    bool            `json:"is_enabled"`
	CreatedBy    string          `json:"created_by,omitempty"`
}

// AlertIDBody is the data of DELETE/ENABLE/DISABLE_ALERT_CONFIG.
type AlertIDBody struct {
	ID string `json:"id"`
}

// ListSignalsBody is the data of LIST_SIGNALS.
type ListSignalsBody struct {
	AlertID string `json:"alert_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// -----------------------------------------------------------------------------
// Response bodies
// -----------------------------------------------------------------------------

// ExchangeDescriptor is one entry of ConfigBody.Exchanges.
type ExchangeDescriptor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Desc  string `json:"desc,omitempty"`
}

// ConfigBody is the data of CONFIG_DATA.
type ConfigBody struct {
	Type                 string               `json:"type"`
	SupportedResolutions []string             `json:"supported_resolutions"`
	SupportsSearch       bool                 `json:"supports_search"`
	SupportsGroupRequest bool                 `json:"supports_group_request"`
	Exchanges            []ExchangeDescriptor `json:"exchanges"`
}

// ServerTimeBody is the data of SERVER_TIME_DATA.
type ServerTimeBody struct {
	ServerTime int64 `json:"server_time"`
}

// Bar is one chart bar in KLINES_DATA and kline UPDATE content.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Closed bool    `json:"closed,omitempty"`
}

// KlinesBody carries request params; KlinesData carries the reply.
type KlinesData struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"bars"`
	NoData   bool   `json:"no_data,omitempty"`
}

// Quote is one consolidated ticker in QUOTES_DATA.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Volume        float64 `json:"volume"`
	Bid           float64 `json:"bid,omitempty"`
	Ask           float64 `json:"ask,omitempty"`
}

// QuotesData is the data of QUOTES_DATA.
type QuotesData struct {
	Quotes []Quote `json:"quotes"`
}

// SubscriptionData is the data of SUBSCRIPTION_DATA.
type SubscriptionData struct {
	Action        string   `json:"action"` // "subscribe" or "unsubscribe"
	Subscriptions []string `json:"subscriptions"`
}

// MetricsData is the data of METRICS_DATA.
type MetricsData struct {
	Sessions      int   `json:"sessions"`
	Subscriptions int   `json:"subscriptions"`
	PendingTasks  int   `json:"pending_tasks"`
	Broadcasts    int64 `json:"broadcasts"`
	FramesSent    int64 `json:"frames_sent"`
	FramesDropped int64 `json:"frames_dropped"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}
