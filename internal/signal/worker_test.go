package signal

import (
	"testing"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
)

func TestBarClosed(t *testing.T) {
	closeTime := int64(1_770_640_739_999)

	tests := []struct {
		name     string
		explicit bool
		now      int64
		want     bool
	}{
		{"upstream flag set", true, closeTime - 30_000, true},
		{"forming, close time ahead", false, closeTime - 30_000, false},
		{"flag missed but close time passed", false, closeTime + 1, true},
		{"exactly at close time", false, closeTime, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.UnixMilli(tt.now)
			if got := barClosed(tt.explicit, closeTime, now); got != tt.want {
				t.Errorf("barClosed(%v, %d, %d) = %v, want %v",
					tt.explicit, closeTime, tt.now, got, tt.want)
			}
		})
	}
}

func TestNewWorkerEvalConcurrency(t *testing.T) {
	var cfg config.WorkerConfig
	cfg.Signals.EvalConcurrency = 3

	w := NewWorker(cfg, WorkerStores{}, nil, nil)
	if got := cap(w.evalSem); got != 3 {
		t.Errorf("evaluation slots = %d, want 3", got)
	}

	// A zero value must not deadlock evaluation.
	w = NewWorker(config.WorkerConfig{}, WorkerStores{}, nil, nil)
	if got := cap(w.evalSem); got != 1 {
		t.Errorf("evaluation slots = %d with zero config, want 1", got)
	}
}
