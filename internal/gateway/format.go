package gateway

import (
	"encoding/json"
	"strconv"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// wsKline is the kline section of an upstream kline stream event.
type wsKline struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

type wsKlineEvent struct {
	Symbol string  `json:"s"`
	Kline  wsKline `json:"k"`
}

// wsTicker is an upstream 24hr rolling ticker event.
type wsTicker struct {
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	PriceChange   string `json:"p"`
	ChangePercent string `json:"P"`
	High          string `json:"h"`
	Low           string `json:"l"`
	Volume        string `json:"v"`
	BestBid       string `json:"b"`
	BestAsk       string `json:"a"`
}

// FormatContent converts a stored upstream payload into the content pushed
// inside an UPDATE frame. Unknown data types pass through verbatim so new
// upstream shapes degrade to raw rather than to silence.
func FormatContent(dataType string, payload json.RawMessage) any {
	switch subkey.DataKind(dataType) {
	case subkey.KindKline:
		var ev wsKlineEvent
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Kline.OpenTime == 0 {
			return payload
		}
		return protocol.Bar{
			Time:   ev.Kline.OpenTime,
			Open:   parseFloat(ev.Kline.Open),
			High:   parseFloat(ev.Kline.High),
			Low:    parseFloat(ev.Kline.Low),
			Close:  parseFloat(ev.Kline.Close),
			Volume: parseFloat(ev.Kline.Volume),
			Closed: ev.Kline.Closed,
		}

	case subkey.KindQuotes:
		var ev wsTicker
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Symbol == "" {
			return payload
		}
		return protocol.Quote{
			Symbol:        ev.Symbol,
			Price:         parseFloat(ev.LastPrice),
			Change:        parseFloat(ev.PriceChange),
			ChangePercent: parseFloat(ev.ChangePercent),
			High:          parseFloat(ev.High),
			Low:           parseFloat(ev.Low),
			Volume:        parseFloat(ev.Volume),
			Bid:           parseFloat(ev.BestBid),
			Ask:           parseFloat(ev.BestAsk),
		}

	default:
		// TRADE and ACCOUNT payloads go out as stored.
		return payload
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
