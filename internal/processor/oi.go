package processor

import (
	"context"
	"fmt"
	"sync"

	appconfig "rektflow/config"
	oichannel "rektflow/internal/channel/oi"
	"rektflow/internal/metrics"
	"rektflow/internal/models"
	"rektflow/logger"
)

// OpenInterestProcessor converts raw open interest observations into chart
// points. The reader already parses the numeric fields, so this stage only
// validates and reshapes.
type OpenInterestProcessor struct {
	config   *appconfig.Config
	channels *oichannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

func NewOpenInterestProcessor(cfg *appconfig.Config, ch *oichannel.Channels) *OpenInterestProcessor {
	return &OpenInterestProcessor{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (p *OpenInterestProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("open interest processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("oi_processor").Info("starting open interest processor")

	p.wg.Add(1)
	go p.worker()
	return nil
}

func (p *OpenInterestProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("oi_processor").Info("open interest processor stopped")
}

func (p *OpenInterestProcessor) worker() {
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

func (p *OpenInterestProcessor) handleMessage(raw models.RawOIMessage) {
	if raw.Symbol == "" || raw.Value <= 0 || raw.Timestamp.IsZero() {
		metrics.IncrementMalformed("open_interest")
		p.log.WithComponent("oi_processor").WithFields(logger.Fields{
			"exchange": raw.Exchange,
			"symbol":   raw.Symbol,
		}).Warn("skipping malformed open interest message")
		return
	}

	point := models.OpenInterestPoint{
		Symbol: raw.Symbol,
		Time:   raw.Timestamp.Unix(),
		Value:  raw.Value,
	}
	if !p.channels.SendPoint(p.ctx, point) && p.ctx.Err() == nil {
		metrics.EmitDropMetric(p.log, metrics.DropMetricOpenInterestRaw, raw.Exchange, raw.Market, raw.Symbol, "point")
	}
}
