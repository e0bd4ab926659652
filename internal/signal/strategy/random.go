package strategy

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// Random marks entries and exits by coin flip. It exists for pipeline
// testing: with a fixed seed the marks depend only on each bar's open
// time, so re-evaluating the same window reproduces the same verdict.
type Random struct{}

type randomParams struct {
	Seed      uint64  `json:"seed"`
	EntryProb float64 `json:"entry_prob"`
	ExitProb  float64 `json:"exit_prob"`
}

func (*Random) Name() string { return "RandomStrategy" }

func (*Random) Evaluate(bars []model.Kline, params json.RawMessage) (Verdict, error) {
	p := randomParams{EntryProb: 0.1, ExitProb: 0.1}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return Verdict{}, fmt.Errorf("RandomStrategy params: %w", err)
		}
	}
	if p.EntryProb < 0 || p.EntryProb > 1 || p.ExitProb < 0 || p.ExitProb > 1 {
		return Verdict{}, fmt.Errorf("RandomStrategy params: probabilities must be in [0,1]")
	}

	v := Verdict{
		Entries: make([]bool, len(bars)),
		Exits:   make([]bool, len(bars)),
	}
	for i, bar := range bars {
		// Seed per bar, not per evaluation: the verdict for a bar never
		// changes once that bar exists.
		rng := rand.New(rand.NewPCG(p.Seed, uint64(bar.OpenTime)))
		v.Entries[i] = rng.Float64() < p.EntryProb
		v.Exits[i] = rng.Float64() < p.ExitProb
	}
	return v, nil
}
