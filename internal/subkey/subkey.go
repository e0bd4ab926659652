package subkey

import (
	"errors"
	"fmt"
	"strings"
)

// DataKind identifies what a subscription key carries.
type DataKind string

const (
	KindKline   DataKind = "KLINE"
	KindQuotes  DataKind = "QUOTES"
	KindTrade   DataKind = "TRADE"
	KindAccount DataKind = "ACCOUNT"
)

// SignalPrefix marks gateway-local keys used for strategy-signal fanout.
// These keys live only in the gateway's in-memory registry.
const SignalPrefix = "SIGNAL:"

// PerpSuffix marks a perpetual-futures symbol (e.g. "BTCUSDT.PERP").
const PerpSuffix = "PERP"

var (
	ErrMalformed   = errors.New("malformed subscription key")
	ErrUnknownKind = errors.New("unknown data kind")
)

// Key is a parsed subscription key of the form
// EXCHANGE:SYMBOL[.SUFFIX]@TYPE[_PARAM].
type Key struct {
	Exchange string   // e.g. "BINANCE"
	Symbol   string   // e.g. "BTCUSDT"
	Suffix   string   // e.g. "PERP", empty for spot
	Kind     DataKind // KLINE, QUOTES, TRADE, ACCOUNT
	Param    string   // interval for klines, depth for book; may be empty
}

// Parse parses a canonical subscription key. Parsing and String are exact
// inverses for every valid key.
func Parse(s string) (Key, error) {
	if strings.HasPrefix(s, SignalPrefix) {
		return Key{}, fmt.Errorf("%w: signal keys are not parseable series keys: %s", ErrMalformed, s)
	}

	colon := strings.Index(s, ":")
	if colon <= 0 {
		return Key{}, fmt.Errorf("%w: missing exchange separator: %s", ErrMalformed, s)
	}
	at := strings.LastIndex(s, "@")
	if at <= colon+1 || at == len(s)-1 {
		return Key{}, fmt.Errorf("%w: missing type separator: %s", ErrMalformed, s)
	}

	k := Key{Exchange: s[:colon]}

	sym := s[colon+1 : at]
	if dot := strings.Index(sym, "."); dot >= 0 {
		k.Symbol = sym[:dot]
		k.Suffix = sym[dot+1:]
		if k.Symbol == "" || k.Suffix == "" {
			return Key{}, fmt.Errorf("%w: empty symbol or suffix: %s", ErrMalformed, s)
		}
	} else {
		k.Symbol = sym
	}
	if k.Symbol == "" {
		return Key{}, fmt.Errorf("%w: empty symbol: %s", ErrMalformed, s)
	}

	typ := s[at+1:]
	kind, param := splitKind(typ)
	switch kind {
	case KindKline, KindQuotes, KindTrade, KindAccount:
		k.Kind = kind
		k.Param = param
	default:
		return Key{}, fmt.Errorf("%w: %q in %s", ErrUnknownKind, typ, s)
	}

	return k, nil
}

// splitKind separates "KLINE_1" into ("KLINE", "1"). The kind itself never
// contains an underscore, so the first underscore is the boundary.
func splitKind(typ string) (DataKind, string) {
	if i := strings.Index(typ, "_"); i >= 0 {
		return DataKind(typ[:i]), typ[i+1:]
	}
	return DataKind(typ), ""
}

// String formats the key back to its canonical form.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Exchange)
	b.WriteByte(':')
	b.WriteString(k.Symbol)
	if k.Suffix != "" {
		b.WriteByte('.')
		b.WriteString(k.Suffix)
	}
	b.WriteByte('@')
	b.WriteString(string(k.Kind))
	if k.Param != "" {
		b.WriteByte('_')
		b.WriteString(k.Param)
	}
	return b.String()
}

// IsPerp reports whether the key targets the perpetual-futures market.
func (k Key) IsPerp() bool {
	return strings.EqualFold(k.Suffix, PerpSuffix)
}

// IsSignal reports whether a raw key belongs to the gateway-local
// SIGNAL: class.
func IsSignal(key string) bool {
	return strings.HasPrefix(key, SignalPrefix)
}

// ForSignal builds the broadcast key for one alert config.
func ForSignal(alertID string) string {
	return SignalPrefix + alertID
}

// ForKline builds the canonical key for a (symbol, resolution) pair, where
// symbol is the "EXCHANGE:SYMBOL[.SUFFIX]" half, e.g. "BINANCE:BTCUSDT".
func ForKline(symbol, resolution string) string {
	return symbol + "@" + string(KindKline) + "_" + resolution
}

// Matches applies the gateway's wildcard routing rules: a registered
// pattern matches an event key if it is equal to it, is the literal "*",
// contains a "*" whose removal yields a prefix of the key, or ends in ":"
// and is a prefix of the key.
func Matches(pattern, eventKey string) bool {
	if pattern == eventKey || pattern == "*" {
		return true
	}
	if strings.Contains(pattern, "*") {
		prefix := strings.ReplaceAll(pattern, "*", "")
		return strings.HasPrefix(eventKey, prefix)
	}
	if strings.HasSuffix(pattern, ":") {
		return strings.HasPrefix(eventKey, pattern)
	}
	return false
}
