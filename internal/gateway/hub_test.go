package gateway

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
)

func newTestHub(taskTimeout time.Duration) *Hub {
	cfg := &config.GatewayConfig{}
	cfg.Session.SendQueueSize = 32
	cfg.Session.TaskTimeout = taskTimeout
	reg := NewRegistry("gw-test", newFakeRegistrar(), nil)
	return NewHub(cfg, reg, nil)
}

// newTestSession registers a session backed by a plain queue, no socket.
func newTestSession(h *Hub, id string) *Session {
	s := &Session{
		ID:     id,
		hub:    h,
		send:   make(chan []byte, 32),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	return s
}

func TestHubTrackTaskCarriesParams(t *testing.T) {
	h := newTestHub(time.Minute)

	want := model.KlinesTaskParams{
		Symbol:   "BINANCE:BTCUSDT",
		Interval: "60",
		FromTime: 1_770_640_680_000,
		ToTime:   1_770_644_280_000,
	}
	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}

	h.TrackTask(7, "sess-1", "req-1", protocol.ReqGetKlines, raw)

	ref, ok := h.TakeTask(7)
	if !ok {
		t.Fatal("TakeTask(7) = false")
	}
	if ref.SessionID != "sess-1" || ref.RequestID != "req-1" || ref.ReqType != protocol.ReqGetKlines {
		t.Errorf("ref = %+v", ref)
	}

	// The completion event carries no params, so the reply range must be
	// recoverable from the correlation alone.
	got, err := klinesParams(ref)
	if err != nil {
		t.Fatalf("klinesParams error: %v", err)
	}
	if got != want {
		t.Errorf("params = %+v, want %+v", got, want)
	}

	if _, ok := h.TakeTask(7); ok {
		t.Error("TakeTask(7) = true after take")
	}
}

func TestHubExpireTasks(t *testing.T) {
	h := newTestHub(10 * time.Millisecond)
	s := newTestSession(h, "sess-1")

	h.TrackTask(1, s.ID, "req-1", protocol.ReqGetQuotes, nil)

	// Not yet due.
	if n := h.expireTasks(time.Now()); n != 0 {
		t.Fatalf("expireTasks(now) = %d, want 0", n)
	}
	if n := h.expireTasks(time.Now().Add(time.Second)); n != 1 {
		t.Fatalf("expireTasks(past deadline) = %d, want 1", n)
	}
	if _, ok := h.TakeTask(1); ok {
		t.Error("expired task still correlated")
	}

	frames := sentFrames(t, s)
	if len(frames) != 1 || frames[0].Type != protocol.TypeError {
		t.Fatalf("frames = %+v, want one ERROR", frames)
	}
	if frames[0].RequestID != "req-1" {
		t.Errorf("requestId = %q", frames[0].RequestID)
	}
	var body protocol.ErrorData
	if err := json.Unmarshal(frames[0].Data, &body); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if body.ErrorCode != protocol.CodeTaskFailed {
		t.Errorf("errorCode = %q", body.ErrorCode)
	}
}

func TestHubExpireTasksDisabled(t *testing.T) {
	h := newTestHub(0)
	h.TrackTask(1, "sess-1", "req-1", protocol.ReqGetQuotes, nil)

	if n := h.expireTasks(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Fatalf("expireTasks = %d with timeout disabled, want 0", n)
	}
	if _, ok := h.TakeTask(1); !ok {
		t.Error("correlation lost with timeout disabled")
	}
}
