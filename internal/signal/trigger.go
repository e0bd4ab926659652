package signal

import (
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// Gate enforces one alert's trigger policy. It is not safe for concurrent
// use; the owning series serialises access.
type Gate struct {
	trigger model.TriggerType

	fired         bool  // once_only: an evaluation already ran
	lastCloseTime int64 // each_kline_close: newest close already handled
	lastWindow    int64 // each_minute: newest minute already handled
}

// NewGate creates a gate for one trigger policy.
func NewGate(trigger model.TriggerType) *Gate {
	return &Gate{trigger: trigger}
}

// Allow reports whether an evaluation may run for this bar update. closed
// marks a bar-close update (forming bar finished).
func (g *Gate) Allow(bar model.Kline, closed bool, now time.Time) bool {
	switch g.trigger {
	case model.TriggerOnceOnly:
		return !g.fired

	case model.TriggerEachKline:
		return true

	case model.TriggerEachKlineClose:
		return closed && bar.CloseTime > g.lastCloseTime

	case model.TriggerEachMinute:
		return now.Unix()/60 > g.lastWindow

	default:
		return false
	}
}

// Mark records that an evaluation ran. once_only consumes its single shot
// here regardless of the verdict: the policy counts evaluations, not
// persisted signals.
func (g *Gate) Mark(bar model.Kline, closed bool, now time.Time) {
	switch g.trigger {
	case model.TriggerOnceOnly:
		g.fired = true
	case model.TriggerEachKlineClose:
		if closed {
			g.lastCloseTime = bar.CloseTime
		}
	case model.TriggerEachMinute:
		g.lastWindow = now.Unix() / 60
	}
}
