package signal

import (
	"testing"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

func TestGateOnceOnly(t *testing.T) {
	g := NewGate(model.TriggerOnceOnly)
	now := time.Now()
	k := bar(0, 1.0)

	if !g.Allow(k, false, now) {
		t.Fatal("first evaluation blocked")
	}

	// One evaluation consumes the single shot even when the strategy
	// returned no signal.
	g.Mark(k, false, now)
	if g.Allow(k, false, now) {
		t.Error("gate open after an evaluation")
	}
	g.Mark(k, false, now)
	if g.Allow(k, false, now) {
		t.Error("gate reopened")
	}
}

func TestGateEachKline(t *testing.T) {
	g := NewGate(model.TriggerEachKline)
	now := time.Now()
	k := bar(0, 1.0)

	for i := 0; i < 3; i++ {
		if !g.Allow(k, false, now) {
			t.Fatalf("evaluation %d blocked", i)
		}
		g.Mark(k, false, now)
	}
}

func TestGateEachKlineClose(t *testing.T) {
	g := NewGate(model.TriggerEachKlineClose)
	now := time.Now()
	k := bar(0, 1.0)

	if g.Allow(k, false, now) {
		t.Fatal("forming-bar update allowed")
	}
	if !g.Allow(k, true, now) {
		t.Fatal("first close blocked")
	}
	g.Mark(k, true, now)

	// The same close must not fire twice.
	if g.Allow(k, true, now) {
		t.Error("duplicate close allowed")
	}

	next := bar(60_000, 1.0)
	if !g.Allow(next, true, now) {
		t.Error("next close blocked")
	}
}

func TestGateEachMinute(t *testing.T) {
	g := NewGate(model.TriggerEachMinute)
	k := bar(0, 1.0)
	base := time.Unix(1_770_640_680, 0)

	if !g.Allow(k, false, base) {
		t.Fatal("first window blocked")
	}
	g.Mark(k, false, base)

	if g.Allow(k, false, base.Add(30*time.Second)) {
		t.Error("same window allowed twice")
	}
	if !g.Allow(k, false, base.Add(61*time.Second)) {
		t.Error("next window blocked")
	}
}
