package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	appconfig "rektflow/config"
	klinechannel "rektflow/internal/channel/kline"
	"rektflow/internal/metrics"
	"rektflow/internal/models"
	"rektflow/logger"
)

// KlineProcessor normalizes raw candlestick payloads into candle updates.
// An update for a still-open bar revises the in-progress interval downstream.
type KlineProcessor struct {
	config   *appconfig.Config
	channels *klinechannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

func NewKlineProcessor(cfg *appconfig.Config, ch *klinechannel.Channels) *KlineProcessor {
	return &KlineProcessor{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (p *KlineProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("kline processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("kline_processor").Info("starting kline processor")

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return nil
}

func (p *KlineProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("kline_processor").Info("kline processor stopped")
}

func (p *KlineProcessor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *KlineProcessor) handleMessage(raw models.RawKlineMessage) {
	upd, err := normalizeBinanceKline(raw)
	if err != nil {
		metrics.IncrementMalformed("kline")
		p.log.WithComponent("kline_processor").WithError(err).WithFields(logger.Fields{
			"exchange": raw.Exchange,
			"symbol":   raw.Symbol,
			"interval": raw.Interval,
		}).Warn("skipping malformed kline message")
		return
	}

	if !p.channels.SendCandle(p.ctx, upd) && p.ctx.Err() == nil {
		metrics.EmitDropMetric(p.log, metrics.DropMetricKlineRaw, raw.Exchange, "kline", upd.Symbol, "candle")
	}
}

func normalizeBinanceKline(raw models.RawKlineMessage) (models.CandleUpdate, error) {
	type binanceKline struct {
		Symbol string `json:"s"`
		Kline  struct {
			OpenTime int64  `json:"t"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	}
	var evt binanceKline
	if err := json.Unmarshal(raw.Data, &evt); err != nil {
		return models.CandleUpdate{}, fmt.Errorf("decode kline: %w", err)
	}

	parse := func(name, v string) (float64, error) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", name, v, err)
		}
		return f, nil
	}

	open, err := parse("open", evt.Kline.Open)
	if err != nil {
		return models.CandleUpdate{}, err
	}
	high, err := parse("high", evt.Kline.High)
	if err != nil {
		return models.CandleUpdate{}, err
	}
	low, err := parse("low", evt.Kline.Low)
	if err != nil {
		return models.CandleUpdate{}, err
	}
	closePrice, err := parse("close", evt.Kline.Close)
	if err != nil {
		return models.CandleUpdate{}, err
	}
	volume, err := parse("volume", evt.Kline.Volume)
	if err != nil {
		return models.CandleUpdate{}, err
	}

	candle, err := models.NewCandle(evt.Kline.OpenTime/1000, open, high, low, closePrice, volume)
	if err != nil {
		return models.CandleUpdate{}, err
	}

	symbol := strings.ToUpper(evt.Symbol)
	if symbol == "" {
		symbol = strings.ToUpper(raw.Symbol)
	}
	if symbol == "" {
		return models.CandleUpdate{}, fmt.Errorf("kline message missing symbol")
	}

	return models.CandleUpdate{Symbol: symbol, Closed: evt.Kline.Closed, Candle: candle}, nil
}
