package protocol

import (
	"encoding/json"
	"time"
)

// Version is the protocol version stamped on every frame.
const Version = "2.0"

// Client request kinds.
const (
	ReqGetConfig          = "GET_CONFIG"
	ReqGetServerTime      = "GET_SERVER_TIME"
	ReqGetMetrics         = "GET_METRICS"
	ReqGetKlines          = "GET_KLINES"
	ReqGetSearchSymbols   = "GET_SEARCH_SYMBOLS"
	ReqGetResolveSymbol   = "GET_RESOLVE_SYMBOL"
	ReqGetQuotes          = "GET_QUOTES"
	ReqGetFuturesAccount  = "GET_FUTURES_ACCOUNT"
	ReqGetSpotAccount     = "GET_SPOT_ACCOUNT"
	ReqSubscribe          = "SUBSCRIBE"
	ReqUnsubscribe        = "UNSUBSCRIBE"
	ReqCreateAlertConfig  = "CREATE_ALERT_CONFIG"
	ReqListAlertConfigs   = "LIST_ALERT_CONFIGS"
	ReqUpdateAlertConfig  = "UPDATE_ALERT_CONFIG"
	ReqDeleteAlertConfig  = "DELETE_ALERT_CONFIG"
	ReqEnableAlertConfig  = "ENABLE_ALERT_CONFIG"
	ReqDisableAlertConfig = "DISABLE_ALERT_CONFIG"
	ReqListSignals        = "LIST_SIGNALS"
)

// Server frame types.
const (
	TypeAck    = "ACK"
	TypeError  = "ERROR"
	TypeUpdate = "UPDATE"

	TypeConfigData        = "CONFIG_DATA"
	TypeServerTimeData    = "SERVER_TIME_DATA"
	TypeMetricsData       = "METRICS_DATA"
	TypeKlinesData        = "KLINES_DATA"
	TypeQuotesData        = "QUOTES_DATA"
	TypeSymbolData        = "SYMBOL_DATA"
	TypeSearchSymbolsData = "SEARCH_SYMBOLS_DATA"
	TypeSubscriptionData  = "SUBSCRIPTION_DATA"
	TypeAlertConfigData   = "ALERT_CONFIG_DATA"
	TypeSignalData        = "SIGNAL_DATA"
	TypeAccountData       = "ACCOUNT_DATA"
)

// Request is the client -> server envelope.
type Request struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Type            string          `json:"type"`
	RequestID       string          `json:"requestId"`
	Timestamp       int64           `json:"timestamp"`
	Data            json.RawMessage `json:"data"`
}

// Frame is the server -> client envelope. RequestID is present iff the
// frame answers a request.
type Frame struct {
	ProtocolVersion string `json:"protocolVersion"`
	Type            string `json:"type"`
	RequestID       string `json:"requestId,omitempty"`
	Timestamp       int64  `json:"timestamp"`
	Data            any    `json:"data"`
}

// Ack builds the phase-1 frame confirming receipt of a request.
func Ack(requestID string) Frame {
	return Frame{
		ProtocolVersion: Version,
		Type:            TypeAck,
		RequestID:       requestID,
		Timestamp:       time.Now().UnixMilli(),
		Data:            struct{}{},
	}
}

// Success builds a phase-3 frame whose type names the concrete data kind.
func Success(frameType, requestID string, data any) Frame {
	return Frame{
		ProtocolVersion: Version,
		Type:            frameType,
		RequestID:       requestID,
		Timestamp:       time.Now().UnixMilli(),
		Data:            data,
	}
}

// ErrorData is the body of an ERROR frame.
type ErrorData struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// ErrorFrame builds the terminal frame for a failed request.
func ErrorFrame(requestID, code, message string) Frame {
	return Frame{
		ProtocolVersion: Version,
		Type:            TypeError,
		RequestID:       requestID,
		Timestamp:       time.Now().UnixMilli(),
		Data:            ErrorData{ErrorCode: code, ErrorMessage: message},
	}
}

// UpdateData is the body of an unsolicited push frame.
type UpdateData struct {
	SubscriptionKey string `json:"subscriptionKey"`
	Content         any    `json:"content"`
	EventType       string `json:"eventType,omitempty"`
}

// Update builds an unsolicited push frame. It carries no requestId.
func Update(subscriptionKey string, content any, eventType string) Frame {
	return Frame{
		ProtocolVersion: Version,
		Type:            TypeUpdate,
		Timestamp:       time.Now().UnixMilli(),
		Data: UpdateData{
			SubscriptionKey: subscriptionKey,
			Content:         content,
			EventType:       eventType,
		},
	}
}
