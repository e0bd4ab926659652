package strategy

import (
	"encoding/json"
	"testing"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

func closes(vals ...float64) []model.Kline {
	out := make([]model.Kline, len(vals))
	for i, v := range vals {
		out[i] = model.Kline{OpenTime: int64(i) * 60_000, Close: v}
	}
	return out
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"RandomStrategy", "SMACrossStrategy"} {
		s, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("Name() = %q, want %q", s.Name(), name)
		}
	}

	if _, err := Lookup("definitely-not-registered"); err == nil {
		t.Error("Lookup(unknown) = nil error, want failure")
	}
}

func TestVerdictLastExitWins(t *testing.T) {
	tests := []struct {
		name    string
		entries []bool
		exits   []bool
		want    model.SignalValue
	}{
		{"entry only", []bool{false, true}, []bool{false, false}, model.SignalLong},
		{"exit only", []bool{false, false}, []bool{false, true}, model.SignalShort},
		{"both marks, exit wins", []bool{false, true}, []bool{false, true}, model.SignalShort},
		{"neither", []bool{true, false}, []bool{true, false}, model.SignalNone},
		{"empty", nil, nil, model.SignalNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Verdict{Entries: tt.entries, Exits: tt.exits}
			if got := v.Last(); got != tt.want {
				t.Errorf("Last() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRandomDeterministic(t *testing.T) {
	bars := closes(1, 2, 3, 4, 5, 6, 7, 8)
	params := json.RawMessage(`{"seed": 42, "entry_prob": 0.5, "exit_prob": 0.5}`)

	s := &Random{}
	first, err := s.Evaluate(bars, params)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	second, err := s.Evaluate(bars, params)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	for i := range bars {
		if first.Entries[i] != second.Entries[i] || first.Exits[i] != second.Exits[i] {
			t.Fatalf("verdict differs at bar %d across evaluations", i)
		}
	}
}

func TestRandomStableUnderGrowth(t *testing.T) {
	params := json.RawMessage(`{"seed": 7, "entry_prob": 0.5, "exit_prob": 0.5}`)
	s := &Random{}

	short, err := s.Evaluate(closes(1, 2, 3), params)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	long, err := s.Evaluate(closes(1, 2, 3, 4, 5), params)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	// Marks depend on the bar, not its position: extending the window must
	// not rewrite history.
	for i := 0; i < 3; i++ {
		if short.Entries[i] != long.Entries[i] || short.Exits[i] != long.Exits[i] {
			t.Fatalf("verdict for bar %d changed when window grew", i)
		}
	}
}

func TestRandomRejectsBadParams(t *testing.T) {
	s := &Random{}
	if _, err := s.Evaluate(closes(1), json.RawMessage(`{"entry_prob": 1.5}`)); err == nil {
		t.Error("Evaluate(prob>1) = nil error, want failure")
	}
	if _, err := s.Evaluate(closes(1), json.RawMessage(`{bad json`)); err == nil {
		t.Error("Evaluate(bad json) = nil error, want failure")
	}
}

func TestSMACross(t *testing.T) {
	// Fast=2, slow=3. Closes fall then rally: the fast average crosses
	// above the slow during the rally and below during the slide.
	bars := closes(10, 9, 8, 7, 6, 7, 9, 12, 11, 8, 6)
	params := json.RawMessage(`{"fast": 2, "slow": 3}`)

	s := &SMACross{}
	v, err := s.Evaluate(bars, params)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if len(v.Entries) != len(bars) || len(v.Exits) != len(bars) {
		t.Fatalf("verdict lengths = %d/%d, want %d", len(v.Entries), len(v.Exits), len(bars))
	}

	var entries, exits []int
	for i := range bars {
		if v.Entries[i] {
			entries = append(entries, i)
		}
		if v.Exits[i] {
			exits = append(exits, i)
		}
	}
	if len(entries) == 0 {
		t.Fatal("no entry marked across a rally")
	}
	if len(exits) == 0 {
		t.Fatal("no exit marked across a slide")
	}
	// The rally entry must precede the slide exit.
	if entries[0] >= exits[len(exits)-1] {
		t.Errorf("entries %v not before exits %v", entries, exits)
	}
}

func TestSMACrossShortWindow(t *testing.T) {
	s := &SMACross{}
	v, err := s.Evaluate(closes(1, 2), json.RawMessage(`{"fast": 2, "slow": 3}`))
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	for i := range v.Entries {
		if v.Entries[i] || v.Exits[i] {
			t.Error("marks emitted below warm-up length")
		}
	}
}

func TestSMACrossRejectsBadParams(t *testing.T) {
	s := &SMACross{}
	for _, params := range []string{
		`{"fast": 0, "slow": 3}`,
		`{"fast": 5, "slow": 3}`,
		`{"fast": 3, "slow": 3}`,
	} {
		if _, err := s.Evaluate(closes(1, 2, 3), json.RawMessage(params)); err == nil {
			t.Errorf("Evaluate(%s) = nil error, want failure", params)
		}
	}
}
