package signal

import (
	"testing"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

func bar(openTime int64, close float64) model.Kline {
	return model.Kline{
		Symbol:    "BINANCE:BTCUSDT",
		Interval:  "1",
		OpenTime:  openTime,
		CloseTime: openTime + 59_999,
		Close:     close,
	}
}

// bars builds n contiguous one-minute bars starting at start.
func bars(start int64, n int) []model.Kline {
	out := make([]model.Kline, n)
	for i := range out {
		out[i] = bar(start+int64(i)*60_000, float64(i))
	}
	return out
}

func TestBufferAppendAndTrim(t *testing.T) {
	buf, err := NewBuffer(3, "1", 1.5)
	if err != nil {
		t.Fatalf("NewBuffer error: %v", err)
	}

	for i, k := range bars(0, 5) {
		if got := buf.Apply(k); got != ApplyAppended {
			t.Fatalf("Apply(#%d) = %v, want ApplyAppended", i, got)
		}
	}

	if buf.Len() != 3 {
		t.Errorf("Len() = %d, want 3", buf.Len())
	}
	last, ok := buf.Last()
	if !ok || last.OpenTime != 4*60_000 {
		t.Errorf("Last() = %v %v", last.OpenTime, ok)
	}
	if !buf.Valid() {
		t.Error("Valid() = false for full contiguous buffer")
	}
}

func TestBufferReplaceFormingBar(t *testing.T) {
	buf, _ := NewBuffer(3, "1", 1.5)
	buf.Apply(bar(0, 1.0))

	if got := buf.Apply(bar(0, 1.5)); got != ApplyReplaced {
		t.Fatalf("Apply(same open) = %v, want ApplyReplaced", got)
	}
	if buf.Len() != 1 {
		t.Errorf("Len() = %d, want 1", buf.Len())
	}
	last, _ := buf.Last()
	if last.Close != 1.5 {
		t.Errorf("Close = %v, want 1.5", last.Close)
	}
}

func TestBufferStale(t *testing.T) {
	buf, _ := NewBuffer(3, "1", 1.5)
	buf.Apply(bar(60_000, 1.0))

	if got := buf.Apply(bar(0, 2.0)); got != ApplyStale {
		t.Errorf("Apply(older) = %v, want ApplyStale", got)
	}
	if buf.Len() != 1 {
		t.Errorf("stale bar changed the buffer, Len() = %d", buf.Len())
	}
}

func TestBufferGapDetection(t *testing.T) {
	buf, _ := NewBuffer(3, "1", 1.5)
	buf.Apply(bar(0, 1.0))

	// 1.5x one minute = 90s; a two-minute jump is a gap.
	if got := buf.Apply(bar(120_000, 2.0)); got != ApplyGap {
		t.Errorf("Apply(gapped) = %v, want ApplyGap", got)
	}
	// One-minute spacing is fine.
	if got := buf.Apply(bar(60_000, 2.0)); got != ApplyAppended {
		t.Errorf("Apply(contiguous) = %v, want ApplyAppended", got)
	}
}

func TestBufferValid(t *testing.T) {
	buf, _ := NewBuffer(3, "1", 1.5)
	if buf.Valid() {
		t.Error("Valid() = true for empty buffer")
	}

	buf.Apply(bar(0, 1.0))
	buf.Apply(bar(60_000, 1.0))
	if buf.Valid() {
		t.Error("Valid() = true below capacity")
	}

	buf.Apply(bar(120_000, 1.0))
	if !buf.Valid() {
		t.Error("Valid() = false for full contiguous buffer")
	}

	// A gapped load is detected.
	gapped := []model.Kline{bar(0, 1.0), bar(60_000, 1.0), bar(300_000, 1.0)}
	buf.Load(gapped)
	if buf.Valid() {
		t.Error("Valid() = true for gapped series")
	}
}

func TestBufferLoadKeepsNewest(t *testing.T) {
	buf, _ := NewBuffer(3, "1", 1.5)
	buf.Load(bars(0, 10))

	if buf.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", buf.Len())
	}
	got := buf.Bars()
	if got[0].OpenTime != 7*60_000 || got[2].OpenTime != 9*60_000 {
		t.Errorf("kept range = [%d, %d], want newest three", got[0].OpenTime, got[2].OpenTime)
	}
}

func TestBufferBarsIsCopy(t *testing.T) {
	buf, _ := NewBuffer(3, "1", 1.5)
	buf.Load(bars(0, 3))

	snapshot := buf.Bars()
	snapshot[0].Close = 999

	if buf.Bars()[0].Close == 999 {
		t.Error("Bars() aliases internal storage")
	}
}

func TestNewBufferRejectsBadInput(t *testing.T) {
	if _, err := NewBuffer(0, "1", 1.5); err == nil {
		t.Error("NewBuffer(0) = nil error, want failure")
	}
	if _, err := NewBuffer(10, "weekly", 1.5); err == nil {
		t.Error("NewBuffer(bad resolution) = nil error, want failure")
	}
}
