package subkey

import (
	"testing"
	"time"
)

func TestIntervalMapping(t *testing.T) {
	tests := []struct {
		resolution string
		interval   string
	}{
		{"1", "1m"},
		{"15", "15m"},
		{"60", "1h"},
		{"240", "4h"},
		{"1D", "1d"},
		{"1W", "1w"},
		{"1M", "1M"},
	}

	for _, tt := range tests {
		t.Run(tt.resolution, func(t *testing.T) {
			iv, err := UpstreamInterval(tt.resolution)
			if err != nil {
				t.Fatalf("UpstreamInterval error: %v", err)
			}
			if iv != tt.interval {
				t.Errorf("UpstreamInterval(%q) = %q, want %q", tt.resolution, iv, tt.interval)
			}
			res, err := Resolution(iv)
			if err != nil {
				t.Fatalf("Resolution error: %v", err)
			}
			if res != tt.resolution {
				t.Errorf("Resolution(%q) = %q, want %q", iv, res, tt.resolution)
			}
		})
	}

	if _, err := UpstreamInterval("7"); err == nil {
		t.Error("UpstreamInterval(\"7\") = nil error, want failure")
	}
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		resolution string
		want       time.Duration
	}{
		{"1", time.Minute},
		{"60", time.Hour},
		{"1D", 24 * time.Hour},
		{"1W", 7 * 24 * time.Hour},
		{"1M", 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		got, err := Period(tt.resolution)
		if err != nil {
			t.Fatalf("Period(%q) error: %v", tt.resolution, err)
		}
		if got != tt.want {
			t.Errorf("Period(%q) = %v, want %v", tt.resolution, got, tt.want)
		}
	}

	if _, err := Period("weekly"); err == nil {
		t.Error("Period(\"weekly\") = nil error, want failure")
	}
}

func TestAlignTime(t *testing.T) {
	tests := []struct {
		name       string
		ms         int64
		resolution string
		want       int64
	}{
		{"already aligned", 3600000, "60", 3600000},
		{"mid hour", 3600000 + 1234567, "60", 3600000},
		{"minute", 61_500, "1", 60_000},
		{"day", 86_400_000 + 5, "1D", 86_400_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AlignTime(tt.ms, tt.resolution)
			if err != nil {
				t.Fatalf("AlignTime error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AlignTime(%d, %q) = %d, want %d", tt.ms, tt.resolution, got, tt.want)
			}
		})
	}
}

func TestStreamNameRoundTrip(t *testing.T) {
	tests := []struct {
		key    string
		stream string
		perp   bool
	}{
		{"BINANCE:BTCUSDT@KLINE_60", "btcusdt@kline_1h", false},
		{"BINANCE:ETHUSDT.PERP@KLINE_1", "ethusdt@kline_1m", true},
		{"BINANCE:BTCUSDT@QUOTES", "btcusdt@ticker", false},
		{"BINANCE:BTCUSDT@TRADE", "btcusdt@trade", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			k, err := Parse(tt.key)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			stream, err := k.StreamName()
			if err != nil {
				t.Fatalf("StreamName error: %v", err)
			}
			if stream != tt.stream {
				t.Errorf("StreamName = %q, want %q", stream, tt.stream)
			}

			back, err := FromStream("BINANCE", stream, tt.perp)
			if err != nil {
				t.Fatalf("FromStream error: %v", err)
			}
			if back.String() != tt.key {
				t.Errorf("FromStream round trip = %q, want %q", back.String(), tt.key)
			}
		})
	}
}

func TestStreamNameAccount(t *testing.T) {
	k, err := Parse("BINANCE:SPOT@ACCOUNT")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, err := k.StreamName(); err == nil {
		t.Error("StreamName for account key = nil error, want failure")
	}
}
