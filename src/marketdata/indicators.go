package marketdata

import (
	"errors"
	"math"

	"tradepilot/src/model"
)

var ErrInsufficientData = errors.New("insufficient candle data")

// EMA returns the exponential moving average of closes over the given period.
func EMA(candles []model.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period {
		return 0, ErrInsufficientData
	}

	// Seed with the SMA of the first period.
	sum := 0.0
	for _, c := range candles[:period] {
		sum += c.Close
	}
	ema := sum / float64(period)

	multiplier := 2.0 / (float64(period) + 1.0)
	for _, c := range candles[period:] {
		ema = (c.Close-ema)*multiplier + ema
	}
	return ema, nil
}

// RSI returns the Wilder-smoothed relative strength index of closes.
func RSI(candles []model.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACDResult carries the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD computes MACD(fast, slow, signal) over closes.
func MACD(candles []model.Candle, fast, slow, signal int) (MACDResult, error) {
	if len(candles) < slow+signal {
		return MACDResult{}, ErrInsufficientData
	}

	// Build the MACD series over the tail so the signal EMA has history.
	macdSeries := make([]float64, 0, signal*2)
	for i := len(candles) - signal*2; i < len(candles); i++ {
		if i < slow {
			continue
		}
		fastEMA, err := EMA(candles[:i+1], fast)
		if err != nil {
			return MACDResult{}, err
		}
		slowEMA, err := EMA(candles[:i+1], slow)
		if err != nil {
			return MACDResult{}, err
		}
		macdSeries = append(macdSeries, fastEMA-slowEMA)
	}
	if len(macdSeries) < signal {
		return MACDResult{}, ErrInsufficientData
	}

	// Signal line: EMA of the MACD series.
	sum := 0.0
	for _, v := range macdSeries[:signal] {
		sum += v
	}
	signalLine := sum / float64(signal)
	multiplier := 2.0 / (float64(signal) + 1.0)
	for _, v := range macdSeries[signal:] {
		signalLine = (v-signalLine)*multiplier + signalLine
	}

	macdLine := macdSeries[len(macdSeries)-1]
	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}, nil
}

// ATR returns the Wilder-smoothed average true range.
func ATR(candles []model.Candle, period int) (float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	trueRange := func(cur, prev model.Candle) float64 {
		hl := cur.High - cur.Low
		hc := math.Abs(cur.High - prev.Close)
		lc := math.Abs(cur.Low - prev.Close)
		return math.Max(hl, math.Max(hc, lc))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(candles[i], candles[i-1])
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(candles[i], candles[i-1])) / float64(period)
	}
	return atr, nil
}
