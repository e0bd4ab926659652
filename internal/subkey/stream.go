package subkey

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// resolutionToInterval maps chart resolutions to Binance kline intervals.
// Resolutions are minutes when numeric, else 1D/1W/1M.
var resolutionToInterval = map[string]string{
	"1":   "1m",
	"3":   "3m",
	"5":   "5m",
	"15":  "15m",
	"30":  "30m",
	"60":  "1h",
	"120": "2h",
	"240": "4h",
	"360": "6h",
	"480": "8h",
	"720": "12h",
	"1D":  "1d",
	"D":   "1d",
	"3D":  "3d",
	"1W":  "1w",
	"W":   "1w",
	"1M":  "1M",
	"M":   "1M",
}

var intervalToResolution = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "8h": "480",
	"12h": "720", "1d": "1D", "3d": "3D", "1w": "1W", "1M": "1M",
}

// UpstreamInterval converts a resolution ("60") to the exchange interval
// token ("1h").
func UpstreamInterval(resolution string) (string, error) {
	iv, ok := resolutionToInterval[resolution]
	if !ok {
		return "", fmt.Errorf("unsupported resolution %q", resolution)
	}
	return iv, nil
}

// Resolution converts an exchange interval token ("1h") back to the
// resolution form ("60").
func Resolution(interval string) (string, error) {
	r, ok := intervalToResolution[interval]
	if !ok {
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
	return r, nil
}

// Period returns the duration of one bar at the given resolution. Months
// are approximated as 30 days; the gap detector tolerates the drift.
func Period(resolution string) (time.Duration, error) {
	switch resolution {
	case "1D", "D":
		return 24 * time.Hour, nil
	case "3D":
		return 72 * time.Hour, nil
	case "1W", "W":
		return 7 * 24 * time.Hour, nil
	case "1M", "M":
		return 30 * 24 * time.Hour, nil
	}
	mins, err := strconv.Atoi(resolution)
	if err != nil || mins <= 0 {
		return 0, fmt.Errorf("unsupported resolution %q", resolution)
	}
	return time.Duration(mins) * time.Minute, nil
}

// AlignTime floors a unix-millisecond timestamp to the resolution's period
// boundary.
func AlignTime(ms int64, resolution string) (int64, error) {
	p, err := Period(resolution)
	if err != nil {
		return 0, err
	}
	pm := p.Milliseconds()
	return ms - ms%pm, nil
}

// StreamName maps a parsed key to the upstream combined-stream name, e.g.
// BINANCE:BTCUSDT@KLINE_1 -> "btcusdt@kline_1m". Account keys have no
// market stream and return an error.
func (k Key) StreamName() (string, error) {
	sym := strings.ToLower(k.Symbol)
	switch k.Kind {
	case KindKline:
		iv, err := UpstreamInterval(k.Param)
		if err != nil {
			return "", err
		}
		return sym + "@kline_" + iv, nil
	case KindQuotes:
		return sym + "@ticker", nil
	case KindTrade:
		return sym + "@trade", nil
	case KindAccount:
		return "", fmt.Errorf("account key %s has no market stream", k.String())
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, k.Kind)
}

// FromStream reverses StreamName for a given exchange and market segment.
// The perp flag restores the ".PERP" suffix lost in the stream name.
func FromStream(exchange, stream string, perp bool) (Key, error) {
	at := strings.Index(stream, "@")
	if at <= 0 {
		return Key{}, fmt.Errorf("%w: stream %q", ErrMalformed, stream)
	}
	k := Key{
		Exchange: exchange,
		Symbol:   strings.ToUpper(stream[:at]),
	}
	if perp {
		k.Suffix = PerpSuffix
	}
	channel := stream[at+1:]
	switch {
	case strings.HasPrefix(channel, "kline_"):
		res, err := Resolution(strings.TrimPrefix(channel, "kline_"))
		if err != nil {
			return Key{}, err
		}
		k.Kind = KindKline
		k.Param = res
	case channel == "ticker":
		k.Kind = KindQuotes
	case channel == "trade":
		k.Kind = KindTrade
	default:
		return Key{}, fmt.Errorf("%w: stream channel %q", ErrUnknownKind, channel)
	}
	return k, nil
}
