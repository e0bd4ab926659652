package protocol

import (
	"encoding/json"
	"testing"
)

func TestAckShape(t *testing.T) {
	data, err := json.Marshal(Ack("req-1"))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if m["protocolVersion"] != Version {
		t.Errorf("protocolVersion = %v", m["protocolVersion"])
	}
	if m["type"] != TypeAck {
		t.Errorf("type = %v", m["type"])
	}
	if m["requestId"] != "req-1" {
		t.Errorf("requestId = %v", m["requestId"])
	}
	if _, ok := m["timestamp"].(float64); !ok {
		t.Errorf("timestamp missing or wrong type: %v", m["timestamp"])
	}
}

func TestErrorFrameShape(t *testing.T) {
	data, err := json.Marshal(ErrorFrame("req-2", CodeInvalidParameters, "bad interval"))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var m struct {
		Type      string    `json:"type"`
		RequestID string    `json:"requestId"`
		Data      ErrorData `json:"data"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if m.Type != TypeError {
		t.Errorf("type = %q", m.Type)
	}
	if m.Data.ErrorCode != CodeInvalidParameters || m.Data.ErrorMessage != "bad interval" {
		t.Errorf("data = %+v", m.Data)
	}
}

func TestUpdateOmitsRequestID(t *testing.T) {
	data, err := json.Marshal(Update("BINANCE:BTCUSDT@KLINE_60", map[string]any{"x": 1}, "KLINE"))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if _, present := m["requestId"]; present {
		t.Error("unsolicited update carries a requestId")
	}

	inner, ok := m["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T", m["data"])
	}
	if inner["subscriptionKey"] != "BINANCE:BTCUSDT@KLINE_60" {
		t.Errorf("subscriptionKey = %v", inner["subscriptionKey"])
	}
	if inner["eventType"] != "KLINE" {
		t.Errorf("eventType = %v", inner["eventType"])
	}
}

func TestDomainBodiesUseSnakeCase(t *testing.T) {
	data, err := json.Marshal(KlinesData{
		Symbol:   "BINANCE:BTCUSDT",
		Interval: "60",
		Bars:     []Bar{},
		NoData:   true,
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if _, ok := m["no_data"]; !ok {
		t.Errorf("no_data missing: %v", m)
	}

	data, _ = json.Marshal(ConfigBody{SupportedResolutions: []string{"60"}})
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if _, ok := m["supported_resolutions"]; !ok {
		t.Errorf("supported_resolutions missing: %v", m)
	}
}
