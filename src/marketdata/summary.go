package marketdata

import (
	"time"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/model"
)

// SymbolSummary is the per-symbol market context handed to the proposal
// service: last price plus standard indicator readings.
type SymbolSummary struct {
	Symbol    string     `json:"symbol"`
	LastPrice float64    `json:"last_price"`
	EMA20     float64    `json:"ema20"`
	EMA50     float64    `json:"ema50"`
	RSI14     float64    `json:"rsi14"`
	MACD      MACDResult `json:"macd"`
	ATR14     float64    `json:"atr14"`
}

// Collector pulls candles from the exchange and reduces them to indicator
// summaries. Symbols with missing or invalid candles are skipped, never fatal.
type Collector struct {
	client   connectors.ExchangeClient
	interval string
	limit    int
}

func NewCollector(client connectors.ExchangeClient) *Collector {
	return &Collector{client: client, interval: "15m", limit: 120}
}

// Collect returns a summary per requested symbol. A symbol that cannot be
// summarized is logged and omitted.
func (c *Collector) Collect(symbols []string) map[string]SymbolSummary {
	summaries := make(map[string]SymbolSummary, len(symbols))

	for _, symbol := range symbols {
		summary, err := c.collectOne(symbol)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol": symbol,
			}).WithError(err).Warn("skipping symbol in market data collection")
			continue
		}
		summaries[symbol] = summary
	}

	return summaries
}

func (c *Collector) collectOne(symbol string) (SymbolSummary, error) {
	raw, err := c.client.GetCandles(symbol, c.interval, c.limit)
	if err != nil {
		return SymbolSummary{}, err
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, r := range raw {
		candle := model.Candle{
			Timestamp: time.Unix(r.Timestamp, 0).UTC(),
			Open:      connectors.ParsePrice(r.Open),
			High:      connectors.ParsePrice(r.High),
			Low:       connectors.ParsePrice(r.Low),
			Close:     connectors.ParsePrice(r.Close),
			Volume:    float64(r.Volume),
		}
		if !candle.Valid() {
			continue
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return SymbolSummary{}, ErrInsufficientData
	}

	summary := SymbolSummary{
		Symbol:    symbol,
		LastPrice: candles[len(candles)-1].Close,
	}

	// Individual indicators degrade independently when history is short.
	if v, err := EMA(candles, 20); err == nil {
		summary.EMA20 = v
	}
	if v, err := EMA(candles, 50); err == nil {
		summary.EMA50 = v
	}
	if v, err := RSI(candles, 14); err == nil {
		summary.RSI14 = v
	}
	if v, err := MACD(candles, 12, 26, 9); err == nil {
		summary.MACD = v
	}
	if v, err := ATR(candles, 14); err == nil {
		summary.ATR14 = v
	}

	return summary, nil
}
