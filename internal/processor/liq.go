package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "rektflow/config"
	liqchannel "rektflow/internal/channel/liq"
	"rektflow/internal/metrics"
	"rektflow/internal/models"
	"rektflow/logger"
)

type liqBatchState struct {
	mu        sync.Mutex
	batch     *models.BatchLiquidationMessage
	lastFlush time.Time
}

// LiquidationProcessor normalizes raw liquidation payloads into events for
// the chart state and batches them for the archive writer. Malformed
// payloads are skipped with a warning; they never stop the stream.
type LiquidationProcessor struct {
	config        *appconfig.Config
	channels      *liqchannel.Channels
	ctx           context.Context
	wg            *sync.WaitGroup
	mu            sync.RWMutex
	running       bool
	log           *logger.Log
	batches       map[string]*liqBatchState
	symbols       map[string]struct{}
	filterSymbols bool
}

// NewLiquidationProcessor builds the processor instance.
func NewLiquidationProcessor(cfg *appconfig.Config, ch *liqchannel.Channels) *LiquidationProcessor {
	symSet := make(map[string]struct{})
	if s := cfg.Source.Binance.Future.Liquidation; s.Enabled {
		for _, x := range s.Symbols {
			symSet[strings.ToUpper(x)] = struct{}{}
		}
	}

	return &LiquidationProcessor{
		config:        cfg,
		channels:      ch,
		wg:            &sync.WaitGroup{},
		log:           logger.GetLogger(),
		batches:       make(map[string]*liqBatchState),
		symbols:       symSet,
		filterSymbols: len(symSet) > 0,
	}
}

// Start begins consuming raw liquidation messages.
func (p *LiquidationProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("liquidation processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("liq_processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting liquidation processor")

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.flusher()
	return nil
}

// Stop drains buffers and stops workers.
func (p *LiquidationProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("liq_processor").Info("stopping liquidation processor")
	p.flushAll()
	p.wg.Wait()
	p.log.WithComponent("liq_processor").Info("liquidation processor stopped")
}

func (p *LiquidationProcessor) worker(id int) {
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

func (p *LiquidationProcessor) handleMessage(raw models.RawLiquidationMessage) {
	evt, err := normalizeBinanceLiq(raw)
	if err != nil {
		metrics.IncrementMalformed("liquidation")
		p.log.WithComponent("liq_processor").WithError(err).WithFields(logger.Fields{
			"exchange": raw.Exchange,
			"symbol":   raw.Symbol,
		}).Warn("skipping malformed liquidation message")
		return
	}

	if p.filterSymbols {
		if _, ok := p.symbols[evt.Symbol]; !ok {
			return
		}
	}

	metrics.IncrementLiquidationEvent(evt.Symbol, string(evt.Side))
	if !p.channels.SendEvent(p.ctx, evt) && p.ctx.Err() == nil {
		metrics.EmitDropMetric(p.log, metrics.DropMetricLiquidationRaw, raw.Exchange, raw.Market, evt.Symbol, "event")
	}
	p.addToBatch(raw, evt)
}

func (p *LiquidationProcessor) addToBatch(raw models.RawLiquidationMessage, evt models.LiquidationEvent) {
	key := fmt.Sprintf("%s_%s_%s", raw.Exchange, raw.Market, evt.Symbol)

	p.mu.RLock()
	state, ok := p.batches[key]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if state, ok = p.batches[key]; !ok {
			state = &liqBatchState{
				batch:     p.newBatch(raw.Exchange, raw.Market, evt.Symbol),
				lastFlush: time.Now(),
			}
			p.batches[key] = state
		}
		p.mu.Unlock()
	}

	state.mu.Lock()
	b := state.batch
	b.Entries = append(b.Entries, evt)
	b.RecordCount = len(b.Entries)
	if raw.Timestamp.After(b.Timestamp) {
		b.Timestamp = raw.Timestamp
	}
	shouldFlush := b.RecordCount >= p.config.Processor.BatchSize
	state.mu.Unlock()

	if shouldFlush {
		p.flush(key)
	}
}

func (p *LiquidationProcessor) newBatch(exchange, market, symbol string) *models.BatchLiquidationMessage {
	return &models.BatchLiquidationMessage{
		BatchID:     uuid.New().String(),
		Exchange:    exchange,
		Symbol:      symbol,
		Market:      market,
		Entries:     make([]models.LiquidationEvent, 0, p.config.Processor.BatchSize),
		ProcessedAt: time.Now(),
	}
}

func (p *LiquidationProcessor) flusher() {
	defer p.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flushTimedOut()
		}
	}
}

func (p *LiquidationProcessor) flushTimedOut() {
	p.mu.RLock()
	now := time.Now()
	for k, state := range p.batches {
		state.mu.Lock()
		due := now.Sub(state.lastFlush) >= p.config.Processor.BatchTimeout && state.batch.RecordCount > 0
		state.mu.Unlock()
		if due {
			p.flush(k)
		}
	}
	p.mu.RUnlock()
}

func (p *LiquidationProcessor) flush(key string) {
	p.mu.RLock()
	state, ok := p.batches[key]
	p.mu.RUnlock()
	if !ok {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	batch := state.batch
	if batch == nil || batch.RecordCount == 0 {
		return
	}
	if p.channels.SendBatch(p.ctx, *batch) {
		state.batch = p.newBatch(batch.Exchange, batch.Market, batch.Symbol)
		state.lastFlush = time.Now()
		return
	}
	if p.ctx.Err() != nil {
		return
	}
	metrics.EmitDropMetric(p.log, metrics.DropMetricBatch, batch.Exchange, batch.Market, batch.Symbol, "batch")
	p.log.WithComponent("liq_processor").WithFields(logger.Fields{"batch_key": key}).Warn("batch channel full, dropping batch")
	state.batch = p.newBatch(batch.Exchange, batch.Market, batch.Symbol)
	state.lastFlush = time.Now()
}

func (p *LiquidationProcessor) flushAll() {
	p.mu.RLock()
	keys := make([]string, 0, len(p.batches))
	for k := range p.batches {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	for _, k := range keys {
		p.flush(k)
	}
}

// normalizeBinanceLiq converts a Binance futures forceOrder payload into a
// liquidation event. A SELL force order closes a long position, so the event
// side reflects the position that was wiped out, not the order side.
func normalizeBinanceLiq(raw models.RawLiquidationMessage) (models.LiquidationEvent, error) {
	type binanceOrder struct {
		EventTime int64 `json:"E"`
		Order     struct {
			Symbol    string `json:"s"`
			Side      string `json:"S"`
			OrderType string `json:"o"`
			Qty       string `json:"q"`
			Price     string `json:"p"`
			TradeTime int64  `json:"T"`
		} `json:"o"`
	}
	var evt binanceOrder
	if err := json.Unmarshal(raw.Data, &evt); err != nil {
		return models.LiquidationEvent{}, fmt.Errorf("decode force order: %w", err)
	}

	side := models.SideShort
	if strings.EqualFold(evt.Order.Side, "SELL") {
		side = models.SideLong
	}

	eventTime := evt.Order.TradeTime
	if eventTime == 0 {
		eventTime = evt.EventTime
	}
	if eventTime == 0 {
		eventTime = raw.Timestamp.UnixMilli()
	}

	qty, err := strconv.ParseFloat(evt.Order.Qty, 64)
	if err != nil {
		return models.LiquidationEvent{}, fmt.Errorf("parse quantity %q: %w", evt.Order.Qty, err)
	}
	price, err := strconv.ParseFloat(evt.Order.Price, 64)
	if err != nil {
		return models.LiquidationEvent{}, fmt.Errorf("parse price %q: %w", evt.Order.Price, err)
	}

	return models.NewLiquidationEvent(
		uuid.New().String(),
		strings.ToUpper(evt.Order.Symbol),
		eventTime/1000,
		side,
		qty,
		price,
	)
}
