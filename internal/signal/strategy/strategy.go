// Package strategy defines the pluggable evaluation core of the signal
// worker. A strategy sees a window of closed bars and marks, per bar,
// where it would enter and where it would exit; the worker only acts on
// the newest bar's verdict.
package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// Strategy evaluates a bar window. Implementations must be deterministic
// for a given (bars, params) pair and safe for concurrent use.
type Strategy interface {
	// Name returns the registered identifier.
	Name() string

	// Evaluate returns per-bar entry and exit marks. Both slices have
	// len(bars) elements.
	Evaluate(bars []model.Kline, params json.RawMessage) (Verdict, error)
}

// Verdict is the per-bar output of one evaluation.
type Verdict struct {
	Entries []bool
	Exits   []bool
}

// Last folds the newest bar's marks into a single signal value with
// exit-wins precedence.
func (v Verdict) Last() model.SignalValue {
	n := len(v.Entries)
	if n == 0 || n != len(v.Exits) {
		return model.SignalNone
	}
	if v.Exits[n-1] {
		return model.SignalShort
	}
	if v.Entries[n-1] {
		return model.SignalLong
	}
	return model.SignalNone
}

var (
	mu       sync.RWMutex
	registry = map[string]Strategy{}
)

// Register adds a strategy under its name. Later registrations replace
// earlier ones.
func Register(s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	registry[s.Name()] = s
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}

// Names returns the registered identifiers, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(&Random{})
	Register(&SMACross{})
}
