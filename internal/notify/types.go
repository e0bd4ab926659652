package notify

import "encoding/json"

// Notify channels. Channel names double as event types in the envelope.
const (
	ChanTaskNew           = "task.new"
	ChanTaskCompleted     = "task.completed"
	ChanTaskFailed        = "task.failed"
	ChanRealtimeUpdate    = "realtime.update"
	ChanSubscriptionAdd   = "subscription.add"
	ChanSubscriptionRem   = "subscription.remove"
	ChanSubscriptionClean = "subscription.clean"
	ChanSignalNew         = "signal.new"
	ChanAlertConfigNew    = "alert_config.new"
	ChanAlertConfigUpdate = "alert_config.update"
	ChanAlertConfigDelete = "alert_config.delete"
)

// Envelope is the uniform notification payload. Consumers extract the
// inner Data object.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TaskEvent is the Data shape of task.new / task.completed / task.failed.
type TaskEvent struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Status  string          `json:"status,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// RealtimeEvent is the Data shape of realtime.update.
type RealtimeEvent struct {
	SubscriptionKey string          `json:"subscription_key"`
	DataType        string          `json:"data_type"`
	Data            json.RawMessage `json:"data"`
	EventTime       int64           `json:"event_time"`
}

// SubscriptionEvent is the Data shape of subscription.add / .remove.
type SubscriptionEvent struct {
	SubscriptionKey string `json:"subscription_key"`
	DataType        string `json:"data_type,omitempty"`
}

// CleanEvent is the Data shape of subscription.clean.
type CleanEvent struct {
	Subscriber string `json:"subscriber,omitempty"`
	Removed    int    `json:"removed,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

// SignalEvent is the Data shape of signal.new.
type SignalEvent struct {
	ID           int64  `json:"id"`
	AlertID      string `json:"alert_id"`
	StrategyType string `json:"strategy_type"`
	Symbol       string `json:"symbol"`
	Interval     string `json:"interval"`
	TriggerType  string `json:"trigger_type"`
	SignalValue  *bool  `json:"signal_value"`
	Reason       string `json:"signal_reason"`
	ComputedAt   int64  `json:"computed_at"`
	SourceKey    string `json:"source_subscription_key"`
}

// AlertConfigEvent is the Data shape of alert_config.* (the full row for
// new/update, id only for delete).
type AlertConfigEvent struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	StrategyType string          `json:"strategy_type,omitempty"`
	Symbol       string          `json:"symbol,omitempty"`
	Interval     string          `json:"interval,omitempty"`
	TriggerType  string          `json:"trigger_type,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	IsEnabled    bool            `json:"is_enabled,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
}
