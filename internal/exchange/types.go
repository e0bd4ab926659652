package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// Market selects which Binance deployment a call targets.
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "perp"
)

// restKline is one row of the REST klines response: a 12-element array of
// mixed numbers and decimal strings.
type restKline [12]json.RawMessage

// toModel converts a wire kline row into a history bar. symbol and
// interval are the canonical forms ("BINANCE:BTCUSDT", "60").
func (r restKline) toModel(symbol, interval string) (model.Kline, error) {
	k := model.Kline{Symbol: symbol, Interval: interval}

	var err error
	if k.OpenTime, err = rawInt(r[0]); err != nil {
		return k, fmt.Errorf("kline open time: %w", err)
	}
	if k.Open, err = rawPrice(r[1]); err != nil {
		return k, fmt.Errorf("kline open: %w", err)
	}
	if k.High, err = rawPrice(r[2]); err != nil {
		return k, fmt.Errorf("kline high: %w", err)
	}
	if k.Low, err = rawPrice(r[3]); err != nil {
		return k, fmt.Errorf("kline low: %w", err)
	}
	if k.Close, err = rawPrice(r[4]); err != nil {
		return k, fmt.Errorf("kline close: %w", err)
	}
	if k.Volume, err = rawPrice(r[5]); err != nil {
		return k, fmt.Errorf("kline volume: %w", err)
	}
	if k.CloseTime, err = rawInt(r[6]); err != nil {
		return k, fmt.Errorf("kline close time: %w", err)
	}
	if k.QuoteVolume, err = rawPrice(r[7]); err != nil {
		return k, fmt.Errorf("kline quote volume: %w", err)
	}
	if k.Trades, err = rawInt(r[8]); err != nil {
		return k, fmt.Errorf("kline trades: %w", err)
	}
	if k.TakerBuyBaseVolume, err = rawPrice(r[9]); err != nil {
		return k, fmt.Errorf("kline taker base: %w", err)
	}
	if k.TakerBuyQuoteVol, err = rawPrice(r[10]); err != nil {
		return k, fmt.Errorf("kline taker quote: %w", err)
	}
	return k, nil
}

func rawInt(raw json.RawMessage) (int64, error) {
	var v int64
	err := json.Unmarshal(raw, &v)
	return v, err
}

// rawPrice decodes a decimal-string field ("123.45").
func rawPrice(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// restTicker is one entry of the 24hr rolling ticker endpoint.
type restTicker struct {
	Symbol        string `json:"symbol"`
	LastPrice     string `json:"lastPrice"`
	PriceChange   string `json:"priceChange"`
	ChangePercent string `json:"priceChangePercent"`
	HighPrice     string `json:"highPrice"`
	LowPrice      string `json:"lowPrice"`
	Volume        string `json:"volume"`
	BidPrice      string `json:"bidPrice"`
	AskPrice      string `json:"askPrice"`
}

// restExchangeInfo is the instrument catalogue response.
type restExchangeInfo struct {
	Symbols []restSymbol `json:"symbols"`
}

type restSymbol struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`

	// Spot carries precisions directly; futures names them differently.
	QuotePrecision     int `json:"quotePrecision"`
	PricePrecision     int `json:"pricePrecision"`
	QuantityPrecision  int `json:"quantityPrecision"`
	BaseAssetPrecision int `json:"baseAssetPrecision"`
}

func (r restSymbol) toModel(exchange string, market Market) model.SymbolInfo {
	info := model.SymbolInfo{
		Symbol:     r.Symbol,
		Exchange:   exchange,
		Market:     string(market),
		BaseAsset:  r.BaseAsset,
		QuoteAsset: r.QuoteAsset,
		Status:     r.Status,
	}
	if market == MarketFutures {
		info.PricePrecision = r.PricePrecision
		info.VolumePrecision = r.QuantityPrecision
	} else {
		info.PricePrecision = r.QuotePrecision
		info.VolumePrecision = r.BaseAssetPrecision
	}
	return info
}

// restServerTime is the time endpoint response.
type restServerTime struct {
	ServerTime int64 `json:"serverTime"`
}

// restAccount covers the fields shared by the spot and futures account
// endpoints that the adapter inspects; the full body is stored verbatim.
type restAccount struct {
	UpdateTime int64 `json:"updateTime"`
}

// streamEnvelope is one combined-stream frame: {"stream": ..., "data": ...}.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// streamEventTime extracts the upstream event time shared by every stream
// payload shape.
type streamEventTime struct {
	EventTime int64 `json:"E"`
}

// streamCommand is the subscribe/unsubscribe frame for the combined
// stream endpoint.
type streamCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// streamReply is the acknowledgement of a streamCommand.
type streamReply struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}
