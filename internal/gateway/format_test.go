package gateway

import (
	"encoding/json"
	"testing"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
)

func TestFormatContentKline(t *testing.T) {
	payload := json.RawMessage(`{
		"e": "kline", "E": 1770640695123, "s": "BTCUSDT",
		"k": {
			"t": 1770640680000, "T": 1770640739999,
			"o": "1.0", "h": "2.0", "l": "0.5", "c": "1.5",
			"v": "10.0", "x": false
		}
	}`)

	content := FormatContent("KLINE", payload)
	bar, ok := content.(protocol.Bar)
	if !ok {
		t.Fatalf("content type = %T, want protocol.Bar", content)
	}

	if bar.Time != 1770640680000 {
		t.Errorf("Time = %d, want 1770640680000", bar.Time)
	}
	if bar.Open != 1.0 || bar.High != 2.0 || bar.Low != 0.5 || bar.Close != 1.5 {
		t.Errorf("OHLC = %v %v %v %v", bar.Open, bar.High, bar.Low, bar.Close)
	}
	if bar.Volume != 10.0 {
		t.Errorf("Volume = %v, want 10.0", bar.Volume)
	}
	if bar.Closed {
		t.Error("Closed = true for a forming bar")
	}
}

func TestFormatContentTicker(t *testing.T) {
	payload := json.RawMessage(`{
		"e": "24hrTicker", "E": 1770640695123, "s": "BTCUSDT",
		"c": "50000.5", "p": "1200.5", "P": "2.46",
		"h": "51000", "l": "48000", "v": "12345.6",
		"b": "50000.4", "a": "50000.6"
	}`)

	content := FormatContent("QUOTES", payload)
	q, ok := content.(protocol.Quote)
	if !ok {
		t.Fatalf("content type = %T, want protocol.Quote", content)
	}

	if q.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q", q.Symbol)
	}
	if q.Price != 50000.5 || q.Change != 1200.5 || q.ChangePercent != 2.46 {
		t.Errorf("price fields = %v %v %v", q.Price, q.Change, q.ChangePercent)
	}
	if q.Bid != 50000.4 || q.Ask != 50000.6 {
		t.Errorf("book fields = %v %v", q.Bid, q.Ask)
	}
}

func TestFormatContentPassthrough(t *testing.T) {
	payload := json.RawMessage(`{"e":"trade","p":"100.5","q":"0.1"}`)

	// Trades and unknown types go out verbatim.
	for _, dataType := range []string{"TRADE", "ACCOUNT", "SOMETHING_NEW"} {
		content := FormatContent(dataType, payload)
		raw, ok := content.(json.RawMessage)
		if !ok {
			t.Fatalf("%s content type = %T, want json.RawMessage", dataType, content)
		}
		if string(raw) != string(payload) {
			t.Errorf("%s content = %s, want passthrough", dataType, raw)
		}
	}
}

func TestFormatContentMalformedKline(t *testing.T) {
	payload := json.RawMessage(`{"nonsense":true}`)
	content := FormatContent("KLINE", payload)
	if _, ok := content.(json.RawMessage); !ok {
		t.Fatalf("malformed kline content type = %T, want passthrough", content)
	}
}
