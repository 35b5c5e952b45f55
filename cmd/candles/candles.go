package candles

import (
	"context"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
	"tradepilot/src/repository"
	"tradepilot/src/utils"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Backfill pulls historical OHLCV bars from Binance spot and stores them as
// reference data for indicator warm-up and offline analysis.
type Backfill struct {
	Log      *logger.Entry
	Config   *Config
	Repo     *repository.CandleRepository
	exchange goex.API
}

func (b *Backfill) Start(ctx context.Context) error {
	b.Config = GetConfig()
	b.exchange = newBinanceInstance()

	if b.Config.AutoMode {
		if err := b.determineStartPoint(ctx); err != nil {
			return err
		}
	}

	return b.fetchAndSave(ctx)
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (b *Backfill) fetchAndSave(ctx context.Context) error {
	klines, err := b.fetchSeries()
	if err != nil {
		return err
	}

	symbol := b.Config.Symbol + "_" + b.Config.Quote

	switch b.Config.DurationStr {
	case Duration1m:
		rows := make([]model.Candle1m, 0, len(klines))
		for i := range klines {
			rows = append(rows, model.Candle1m{
				Symbol:   symbol,
				Datetime: utils.BarTime(time.Unix(klines[i].Timestamp, 0), time.Minute),
				Open:     decimal.NewFromFloat(klines[i].Open),
				High:     decimal.NewFromFloat(klines[i].High),
				Low:      decimal.NewFromFloat(klines[i].Low),
				Close:    decimal.NewFromFloat(klines[i].Close),
				Volume:   decimal.NewFromFloat(klines[i].Vol),
			})
		}
		if err := b.Repo.Upsert1m(ctx, rows); err != nil {
			return err
		}
	case Duration1h:
		rows := make([]model.Candle1h, 0, len(klines))
		for i := range klines {
			rows = append(rows, model.Candle1h{
				Symbol:   symbol,
				Datetime: utils.BarTime(time.Unix(klines[i].Timestamp, 0), time.Hour),
				Open:     decimal.NewFromFloat(klines[i].Open),
				High:     decimal.NewFromFloat(klines[i].High),
				Low:      decimal.NewFromFloat(klines[i].Low),
				Close:    decimal.NewFromFloat(klines[i].Close),
				Volume:   decimal.NewFromFloat(klines[i].Vol),
			})
		}
		if err := b.Repo.Upsert1h(ctx, rows); err != nil {
			return err
		}
	default:
		panic("invalid DURATION env var")
	}

	b.Log.WithFields(logger.Fields{
		"Symbol":   symbol,
		"Duration": b.Config.DurationStr,
		"Bars":     len(klines),
	}).Info("candle backfill stored")

	return nil
}

func (b *Backfill) determineStartPoint(ctx context.Context) error {
	b.Config.EndDt = time.Now()

	symbol := b.Config.Symbol + "_" + b.Config.Quote

	var latest time.Time
	var err error
	switch b.Config.DurationStr {
	case Duration1h:
		latest, err = b.Repo.LatestDatetime1h(ctx, symbol)
	default:
		latest, err = b.Repo.LatestDatetime1m(ctx, symbol)
	}
	if err != nil {
		b.Log.WithError(err).Error("failed to query latest candle datetime")
		return err
	}

	if latest.IsZero() {
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("no stored candles, starting from configured StartDt")
		return nil
	}

	// Resume one interval before the last stored bar so the partial final bar
	// gets overwritten.
	b.Config.StartDt = latest.Add(-b.parseDuration())
	b.Log.
		WithField("StartDt", b.Config.StartDt.String()).
		WithField("EndDt", b.Config.EndDt.String()).
		Info("resuming candle backfill from last stored bar")

	return nil
}

func (b *Backfill) fetchSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(
		goex.Currency{Symbol: b.Config.Symbol},
		goex.Currency{Symbol: b.Config.Quote},
	)

	const millis = 1000
	klines, err := b.exchange.GetKlineRecords(
		targetSymbol,
		b.parseDurationToGoex(),
		b.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", b.Config.StartDt.Unix()*millis).
			Optional("endTime", b.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

func (b *Backfill) parseDuration() time.Duration {
	switch b.Config.DurationStr {
	case Duration1m:
		return time.Minute
	case Duration1h:
		return time.Hour
	default:
		panic("invalid DURATION env var")
	}
}

func (b *Backfill) parseDurationToGoex() goex.KlinePeriod {
	switch b.Config.DurationStr {
	case Duration1m:
		return goex.KLINE_PERIOD_1MIN
	case Duration1h:
		return goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
}
