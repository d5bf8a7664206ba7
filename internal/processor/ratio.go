package processor

import (
	"context"
	"fmt"
	"sync"

	appconfig "rektflow/config"
	ratiochannel "rektflow/internal/channel/ratio"
	"rektflow/internal/metrics"
	"rektflow/internal/models"
	"rektflow/logger"
)

// PositionRatioProcessor converts raw top long/short ratio observations into
// chart points.
type PositionRatioProcessor struct {
	config   *appconfig.Config
	channels *ratiochannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

func NewPositionRatioProcessor(cfg *appconfig.Config, ch *ratiochannel.Channels) *PositionRatioProcessor {
	return &PositionRatioProcessor{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (p *PositionRatioProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("position ratio processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("ratio_processor").Info("starting position ratio processor")

	p.wg.Add(1)
	go p.worker()
	return nil
}

func (p *PositionRatioProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("ratio_processor").Info("position ratio processor stopped")
}

func (p *PositionRatioProcessor) worker() {
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

func (p *PositionRatioProcessor) handleMessage(raw models.RawRatioMessage) {
	if raw.Symbol == "" || raw.LongShortRatio <= 0 || raw.Timestamp.IsZero() {
		metrics.IncrementMalformed("position_ratio")
		p.log.WithComponent("ratio_processor").WithFields(logger.Fields{
			"exchange": raw.Exchange,
			"symbol":   raw.Symbol,
		}).Warn("skipping malformed position ratio message")
		return
	}

	point := models.PositionRatioPoint{
		Symbol:         raw.Symbol,
		Time:           raw.Timestamp.Unix(),
		LongShortRatio: raw.LongShortRatio,
		LongAccount:    raw.LongAccount,
		ShortAccount:   raw.ShortAccount,
	}
	if !p.channels.SendPoint(p.ctx, point) && p.ctx.Err() == nil {
		metrics.EmitDropMetric(p.log, metrics.DropMetricPositionRatioRaw, raw.Exchange, raw.Market, raw.Symbol, "point")
	}
}
