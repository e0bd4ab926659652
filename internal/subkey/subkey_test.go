package subkey

import (
	"errors"
	"testing"
)

func TestParseStringRoundTrip(t *testing.T) {
	tests := []string{
		"BINANCE:BTCUSDT@KLINE_60",
		"BINANCE:BTCUSDT@KLINE_1D",
		"BINANCE:ETHUSDT.PERP@KLINE_5",
		"BINANCE:BTCUSDT@QUOTES",
		"BINANCE:ETHUSDT.PERP@TRADE",
		"BINANCE:SPOT@ACCOUNT",
	}

	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			k, err := Parse(key)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", key, err)
			}
			if got := k.String(); got != key {
				t.Errorf("round trip = %q, want %q", got, key)
			}
		})
	}
}

func TestParseFields(t *testing.T) {
	k, err := Parse("BINANCE:ETHUSDT.PERP@KLINE_60")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if k.Exchange != "BINANCE" || k.Symbol != "ETHUSDT" || k.Suffix != "PERP" {
		t.Errorf("symbol fields = %q %q %q", k.Exchange, k.Symbol, k.Suffix)
	}
	if k.Kind != KindKline || k.Param != "60" {
		t.Errorf("kind fields = %q %q", k.Kind, k.Param)
	}
	if !k.IsPerp() {
		t.Error("IsPerp() = false, want true")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"", ErrMalformed},
		{"BTCUSDT@KLINE_60", ErrMalformed},
		{"BINANCE:@KLINE_60", ErrMalformed},
		{"BINANCE:BTCUSDT", ErrMalformed},
		{"BINANCE:BTCUSDT@", ErrMalformed},
		{"BINANCE:BTCUSDT.@KLINE_60", ErrMalformed},
		{"BINANCE:BTCUSDT@BOOK_5", ErrUnknownKind},
		{"SIGNAL:abc-123", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := Parse(tt.key)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func TestIsSignal(t *testing.T) {
	if !IsSignal(ForSignal("abc-123")) {
		t.Error("ForSignal output not recognised by IsSignal")
	}
	if IsSignal("BINANCE:BTCUSDT@KLINE_60") {
		t.Error("series key misclassified as signal key")
	}
}

func TestMatches(t *testing.T) {
	const event = "BINANCE:BTCUSDT@KLINE_60"

	tests := []struct {
		pattern string
		want    bool
	}{
		{"BINANCE:BTCUSDT@KLINE_60", true},
		{"*", true},
		{"BINANCE:*", true},
		{"BINANCE:BTCUSDT@*", true},
		{"BINANCE:", true},
		{"BINANCE:BTCUSDT@KLINE_5", false},
		{"BINANCE:ETHUSDT@*", false},
		{"OKX:", false},
		{"BINANCE", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := Matches(tt.pattern, event); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.pattern, event, got, tt.want)
			}
		})
	}
}

func TestForKline(t *testing.T) {
	if got := ForKline("BINANCE:BTCUSDT", "60"); got != "BINANCE:BTCUSDT@KLINE_60" {
		t.Errorf("ForKline = %q", got)
	}
	if got := ForKline("BINANCE:ETHUSDT.PERP", "1D"); got != "BINANCE:ETHUSDT.PERP@KLINE_1D" {
		t.Errorf("ForKline = %q", got)
	}
}
