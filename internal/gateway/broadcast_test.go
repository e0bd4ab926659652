package gateway

import (
	"sort"
	"testing"
)

func TestMatchSessions(t *testing.T) {
	snapshot := map[string][]string{
		"BINANCE:BTCUSDT@KLINE_60": {"s1", "s2"},
		"BINANCE:BTCUSDT@QUOTES":   {"s3"},
		"BINANCE:*":                {"s4"},
		"*":                        {"s5"},
		"BINANCE:":                 {"s6"},
		"SIGNAL:abc":               {"s7"},
	}

	tests := []struct {
		event string
		want  []string
	}{
		{"BINANCE:BTCUSDT@KLINE_60", []string{"s1", "s2", "s4", "s5", "s6"}},
		{"BINANCE:BTCUSDT@QUOTES", []string{"s3", "s4", "s5", "s6"}},
		{"BINANCE:ETHUSDT@TRADE", []string{"s4", "s5", "s6"}},
		{"OKX:BTCUSDT@KLINE_60", []string{"s5"}},
		{"SIGNAL:abc", []string{"s5", "s7"}},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			got := MatchSessions(tt.event, snapshot)
			sort.Strings(got)
			if len(got) != len(tt.want) {
				t.Fatalf("MatchSessions(%q) = %v, want %v", tt.event, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("MatchSessions(%q) = %v, want %v", tt.event, got, tt.want)
				}
			}
		})
	}
}

func TestMatchSessionsDeduplicates(t *testing.T) {
	snapshot := map[string][]string{
		"BINANCE:BTCUSDT@KLINE_60": {"s1"},
		"BINANCE:*":                {"s1"},
		"*":                        {"s1"},
	}

	got := MatchSessions("BINANCE:BTCUSDT@KLINE_60", snapshot)
	if len(got) != 1 || got[0] != "s1" {
		t.Errorf("MatchSessions = %v, want [s1]", got)
	}
}
