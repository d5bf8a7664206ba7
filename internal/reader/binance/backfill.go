package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	appconfig "rektflow/config"
	"rektflow/internal/models"
	"rektflow/logger"
)

// Backfiller fetches candle history over REST so the chart opens with a
// full window before live updates start merging in.
type Backfiller struct {
	config  *appconfig.Config
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewBackfiller(cfg *appconfig.Config, limiter *rate.Limiter) *Backfiller {
	return &Backfiller{
		config:  cfg,
		client:  futures.NewClient("", ""),
		limiter: limiter,
		log:     logger.GetLogger(),
	}
}

// Candles fetches up to limit historical bars for the symbol at the chart
// interval. Malformed rows are skipped with a warning.
func (b *Backfiller) Candles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = b.config.Chart.HistoryLimit
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	rows, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(b.config.Chart.Interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	log := b.log.WithComponent("binance_backfill").WithFields(logger.Fields{
		"symbol":   symbol,
		"interval": b.config.Chart.Interval,
	})

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKlineRow(row)
		if err != nil {
			log.WithError(err).Warn("skipping malformed backfill candle")
			continue
		}
		candles = append(candles, candle)
	}

	log.WithFields(logger.Fields{"count": len(candles)}).Info("backfilled candle history")
	return candles, nil
}

func parseKlineRow(row *futures.Kline) (models.Candle, error) {
	parse := func(name, v string) (float64, error) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", name, v, err)
		}
		return f, nil
	}

	open, err := parse("open", row.Open)
	if err != nil {
		return models.Candle{}, err
	}
	high, err := parse("high", row.High)
	if err != nil {
		return models.Candle{}, err
	}
	low, err := parse("low", row.Low)
	if err != nil {
		return models.Candle{}, err
	}
	closePrice, err := parse("close", row.Close)
	if err != nil {
		return models.Candle{}, err
	}
	volume, err := parse("volume", row.Volume)
	if err != nil {
		return models.Candle{}, err
	}

	return models.NewCandle(row.OpenTime/1000, open, high, low, closePrice, volume)
}
