package signal

import (
	"fmt"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// ApplyResult describes what a live bar did to a Buffer.
type ApplyResult int

const (
	// ApplyStale means the bar is older than the newest held bar.
	ApplyStale ApplyResult = iota

	// ApplyReplaced means the bar updated the newest (forming) bar in place.
	ApplyReplaced

	// ApplyAppended means the bar extended the series contiguously.
	ApplyAppended

	// ApplyGap means the bar is too far ahead of the newest held bar. The
	// buffer did not take it; the series must be re-filled from history.
	ApplyGap
)

// Buffer holds the newest bars of one (symbol, resolution) series in open
// time order. It is not safe for concurrent use; the owning series
// serialises access.
type Buffer struct {
	size      int
	period    time.Duration
	gapFactor float64

	bars []model.Kline
}

// NewBuffer creates a buffer holding up to size bars of the given
// resolution.
func NewBuffer(size int, resolution string, gapFactor float64) (*Buffer, error) {
	period, err := subkey.Period(resolution)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", size)
	}
	if gapFactor <= 1 {
		gapFactor = 1.5
	}
	return &Buffer{size: size, period: period, gapFactor: gapFactor}, nil
}

// gapThreshold is the largest tolerated spacing between consecutive bars.
// Calendar months make exact spacing impossible, hence the factor.
func (b *Buffer) gapThreshold() time.Duration {
	return time.Duration(float64(b.period) * b.gapFactor)
}

// Apply folds one live bar into the series.
func (b *Buffer) Apply(k model.Kline) ApplyResult {
	if len(b.bars) == 0 {
		b.bars = append(b.bars, k)
		return ApplyAppended
	}

	last := b.bars[len(b.bars)-1]
	switch {
	case k.OpenTime < last.OpenTime:
		return ApplyStale

	case k.OpenTime == last.OpenTime:
		b.bars[len(b.bars)-1] = k
		return ApplyReplaced

	case time.Duration(k.OpenTime-last.OpenTime)*time.Millisecond > b.gapThreshold():
		return ApplyGap

	default:
		b.bars = append(b.bars, k)
		if len(b.bars) > b.size {
			b.bars = b.bars[len(b.bars)-b.size:]
		}
		return ApplyAppended
	}
}

// Load replaces the series with bars from history, keeping the newest
// size entries. bars must already be ascending by open time.
func (b *Buffer) Load(bars []model.Kline) {
	if len(bars) > b.size {
		bars = bars[len(bars)-b.size:]
	}
	b.bars = append(b.bars[:0], bars...)
}

// Valid reports whether the buffer is full and contiguous: size bars with
// no spacing above the gap threshold.
func (b *Buffer) Valid() bool {
	if len(b.bars) < b.size {
		return false
	}
	threshold := b.gapThreshold()
	for i := 1; i < len(b.bars); i++ {
		if time.Duration(b.bars[i].OpenTime-b.bars[i-1].OpenTime)*time.Millisecond > threshold {
			return false
		}
	}
	return true
}

// Bars returns a copy of the held series.
func (b *Buffer) Bars() []model.Kline {
	out := make([]model.Kline, len(b.bars))
	copy(out, b.bars)
	return out
}

// Len returns the number of held bars.
func (b *Buffer) Len() int { return len(b.bars) }

// Last returns the newest bar.
func (b *Buffer) Last() (model.Kline, bool) {
	if len(b.bars) == 0 {
		return model.Kline{}, false
	}
	return b.bars[len(b.bars)-1], true
}
