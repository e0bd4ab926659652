package exchange

import (
	"encoding/json"
	"testing"
)

func TestRestKlineToModel(t *testing.T) {
	row := []byte(`[
		1770640680000, "42000.10", "42100.00", "41950.50", "42050.25",
		"12.345", 1770640739999, "519000.75", 321, "6.1", "256000.2", "0"
	]`)

	var r restKline
	if err := json.Unmarshal(row, &r); err != nil {
		t.Fatalf("unmarshal row: %v", err)
	}

	k, err := r.toModel("BINANCE:BTCUSDT", "1")
	if err != nil {
		t.Fatalf("toModel error: %v", err)
	}

	if k.Symbol != "BINANCE:BTCUSDT" || k.Interval != "1" {
		t.Errorf("identity = %q %q", k.Symbol, k.Interval)
	}
	if k.OpenTime != 1770640680000 || k.CloseTime != 1770640739999 {
		t.Errorf("times = %d %d", k.OpenTime, k.CloseTime)
	}
	if k.Open != 42000.10 || k.High != 42100.00 || k.Low != 41950.50 || k.Close != 42050.25 {
		t.Errorf("OHLC = %v %v %v %v", k.Open, k.High, k.Low, k.Close)
	}
	if k.Volume != 12.345 || k.QuoteVolume != 519000.75 {
		t.Errorf("volumes = %v %v", k.Volume, k.QuoteVolume)
	}
	if k.Trades != 321 {
		t.Errorf("Trades = %d", k.Trades)
	}
	if k.TakerBuyBaseVolume != 6.1 || k.TakerBuyQuoteVol != 256000.2 {
		t.Errorf("taker volumes = %v %v", k.TakerBuyBaseVolume, k.TakerBuyQuoteVol)
	}
}

func TestRestKlineToModelBadField(t *testing.T) {
	row := []byte(`[
		1770640680000, "not-a-number", "1", "1", "1",
		"1", 1770640739999, "1", 1, "1", "1", "0"
	]`)

	var r restKline
	if err := json.Unmarshal(row, &r); err != nil {
		t.Fatalf("unmarshal row: %v", err)
	}
	if _, err := r.toModel("BINANCE:BTCUSDT", "1"); err == nil {
		t.Error("toModel(bad price) = nil error, want failure")
	}
}

func TestRestSymbolToModel(t *testing.T) {
	sym := restSymbol{
		Symbol:             "BTCUSDT",
		Status:             "TRADING",
		BaseAsset:          "BTC",
		QuoteAsset:         "USDT",
		QuotePrecision:     8,
		BaseAssetPrecision: 6,
		PricePrecision:     2,
		QuantityPrecision:  3,
	}

	spot := sym.toModel("BINANCE", MarketSpot)
	if spot.Market != "spot" || spot.PricePrecision != 8 || spot.VolumePrecision != 6 {
		t.Errorf("spot mapping = %q %d %d", spot.Market, spot.PricePrecision, spot.VolumePrecision)
	}

	perp := sym.toModel("BINANCE", MarketFutures)
	if perp.Market != "perp" || perp.PricePrecision != 2 || perp.VolumePrecision != 3 {
		t.Errorf("futures mapping = %q %d %d", perp.Market, perp.PricePrecision, perp.VolumePrecision)
	}
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in      string
		raw     string
		market  Market
		wantErr bool
	}{
		{in: "BINANCE:BTCUSDT", raw: "BTCUSDT", market: MarketSpot},
		{in: "BINANCE:BTCUSDT.PERP", raw: "BTCUSDT", market: MarketFutures},
		{in: "BINANCE:ethusdt.perp", raw: "ethusdt", market: MarketFutures},
		{in: "KRAKEN:BTCUSD", wantErr: true},
		{in: "BTCUSDT", wantErr: true},
		{in: "BINANCE:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			raw, market, err := parseSymbol(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSymbol error: %v", err)
			}
			if raw != tt.raw || market != tt.market {
				t.Errorf("= %q %q, want %q %q", raw, market, tt.raw, tt.market)
			}
		})
	}
}
