package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// SMACross marks an entry where the fast simple moving average crosses
// above the slow one, and an exit where it crosses below.
type SMACross struct{}

type smaParams struct {
	Fast int `json:"fast"`
	Slow int `json:"slow"`
}

func (*SMACross) Name() string { return "SMACrossStrategy" }

func (*SMACross) Evaluate(bars []model.Kline, params json.RawMessage) (Verdict, error) {
	p := smaParams{Fast: 20, Slow: 60}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return Verdict{}, fmt.Errorf("SMACrossStrategy params: %w", err)
		}
	}
	if p.Fast <= 0 || p.Slow <= 0 || p.Fast >= p.Slow {
		return Verdict{}, fmt.Errorf("SMACrossStrategy params: need 0 < fast < slow, got fast=%d slow=%d", p.Fast, p.Slow)
	}

	v := Verdict{
		Entries: make([]bool, len(bars)),
		Exits:   make([]bool, len(bars)),
	}
	if len(bars) <= p.Slow {
		return v, nil
	}

	fast := sma(bars, p.Fast)
	slow := sma(bars, p.Slow)
	for i := p.Slow; i < len(bars); i++ {
		above := fast[i] > slow[i]
		wasAbove := fast[i-1] > slow[i-1]
		v.Entries[i] = above && !wasAbove
		v.Exits[i] = !above && wasAbove
	}
	return v, nil
}

// sma computes the n-bar simple moving average of closes. Positions with
// fewer than n bars of history hold zero; callers skip them via the slow
// warm-up offset.
func sma(bars []model.Kline, n int) []float64 {
	out := make([]float64, len(bars))
	var sum float64
	for i, bar := range bars {
		sum += bar.Close
		if i >= n {
			sum -= bars[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}
