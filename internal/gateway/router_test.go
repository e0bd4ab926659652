package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
)

// wireFrame is the outbound envelope as a client decodes it.
type wireFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// sentFrames drains a test session's queue.
func sentFrames(t *testing.T, s *Session) []wireFrame {
	t.Helper()
	var out []wireFrame
	for {
		select {
		case data := <-s.send:
			var f wireFrame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Fatalf("unmarshal sent frame: %v", err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func newTestRouter() (*Router, *Hub) {
	hub := newTestHub(time.Minute)
	r := NewRouter(hub, hub.registry, RouterStores{}, nil)
	hub.SetHandler(r)
	return r, hub
}

func request(reqType, requestID, data string) []byte {
	if data == "" {
		data = "{}"
	}
	return []byte(fmt.Sprintf(
		`{"protocolVersion":"2.0","type":%q,"requestId":%q,"timestamp":1,"data":%s}`,
		reqType, requestID, data))
}

func TestRouterAckPrecedesTerminal(t *testing.T) {
	tests := []struct {
		reqType  string
		data     string
		terminal string
	}{
		{protocol.ReqGetConfig, "", protocol.TypeConfigData},
		{protocol.ReqGetServerTime, "", protocol.TypeServerTimeData},
		{protocol.ReqGetMetrics, "", protocol.TypeMetricsData},
		{protocol.ReqSubscribe, `{"subscriptions":["BINANCE:BTCUSDT@KLINE_60"]}`, protocol.TypeSubscriptionData},
		{"BOGUS_TYPE", "", protocol.TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.reqType, func(t *testing.T) {
			r, hub := newTestRouter()
			s := newTestSession(hub, "sess-1")

			r.HandleFrame(context.Background(), s, request(tt.reqType, "req-1", tt.data))

			frames := sentFrames(t, s)
			if len(frames) != 2 {
				t.Fatalf("got %d frames, want ACK then terminal", len(frames))
			}
			if frames[0].Type != protocol.TypeAck {
				t.Fatalf("first frame = %q, want ACK", frames[0].Type)
			}
			if frames[0].RequestID != "req-1" || frames[1].RequestID != "req-1" {
				t.Errorf("requestIds = %q, %q", frames[0].RequestID, frames[1].RequestID)
			}
			if frames[1].Type != tt.terminal {
				t.Errorf("terminal frame = %q, want %q", frames[1].Type, tt.terminal)
			}
		})
	}
}

func TestRouterClearsRequestAfterTerminal(t *testing.T) {
	r, hub := newTestRouter()
	s := newTestSession(hub, "sess-1")

	r.HandleFrame(context.Background(), s, request(protocol.ReqGetConfig, "req-1", ""))

	hub.mu.Lock()
	pending := len(hub.pendingRequests)
	hub.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending requests = %d after terminal frame, want 0", pending)
	}
}

func TestRouterMalformedFrame(t *testing.T) {
	r, hub := newTestRouter()
	s := newTestSession(hub, "sess-1")

	r.HandleFrame(context.Background(), s, []byte(`{not json`))

	frames := sentFrames(t, s)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want single ERROR without ACK", len(frames))
	}
	if frames[0].Type != protocol.TypeError {
		t.Fatalf("frame = %q, want ERROR", frames[0].Type)
	}
	var body protocol.ErrorData
	if err := json.Unmarshal(frames[0].Data, &body); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if body.ErrorCode != protocol.CodeInvalidMessage {
		t.Errorf("errorCode = %q", body.ErrorCode)
	}
}
