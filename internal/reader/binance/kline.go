package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	appconfig "rektflow/config"
	klinechannel "rektflow/internal/channel/kline"
	"rektflow/internal/models"
	"rektflow/logger"

	futures "github.com/adshao/go-binance/v2/futures"
)

// Binance_KLINE_Reader streams candlesticks for the configured chart
// interval from the Binance futures websocket API.
type Binance_KLINE_Reader struct {
	config   *appconfig.Config
	channels *klinechannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
	interval string
}

// Binance_KLINE_NewReader constructs a new candlestick reader.
func Binance_KLINE_NewReader(cfg *appconfig.Config, ch *klinechannel.Channels, symbols []string) *Binance_KLINE_Reader {
	return &Binance_KLINE_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
		interval: cfg.Chart.Interval,
	}
}

// Binance_KLINE_Start launches websocket subscriptions for each configured
// symbol.
func (r *Binance_KLINE_Reader) Binance_KLINE_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance kline reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Binance.Future.Kline
	log := r.log.WithComponent("binance_kline_reader").WithFields(logger.Fields{"operation": "Binance_KLINE_Start"})

	if !cfg.Enabled {
		log.Warn("binance futures kline stream disabled via configuration")
		return fmt.Errorf("binance futures kline stream disabled")
	}
	if len(r.symbols) == 0 {
		if len(cfg.Symbols) == 0 {
			log.Warn("no symbols configured for binance kline reader")
			return fmt.Errorf("no symbols configured for binance kline reader")
		}
		r.symbols = cfg.Symbols
	}

	log.WithFields(logger.Fields{
		"symbols":  strings.Join(r.symbols, ","),
		"interval": r.interval,
	}).Info("starting binance kline reader")

	for _, symbol := range r.symbols {
		sym := strings.ToUpper(symbol)
		r.wg.Add(1)
		go r.streamSymbol(sym)
	}

	return nil
}

// Binance_KLINE_Stop waits for all symbol workers to stop.
func (r *Binance_KLINE_Reader) Binance_KLINE_Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_kline_reader").Info("stopping binance kline reader")
	r.wg.Wait()
	r.log.WithComponent("binance_kline_reader").Info("binance kline reader stopped")
}

func (r *Binance_KLINE_Reader) streamSymbol(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_kline_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "kline_stream",
	})

	handler := func(event *futures.WsKlineEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.WithError(err).Warn("failed to marshal kline event")
			return
		}

		msg := models.RawKlineMessage{
			Exchange:  "binance",
			Symbol:    strings.ToUpper(event.Symbol),
			Interval:  r.interval,
			Data:      payload,
			Timestamp: time.UnixMilli(event.Time).UTC(),
		}

		if !r.channels.SendRaw(r.ctx, msg) && r.ctx.Err() == nil {
			log.Warn("kline raw channel full, dropping message")
		}
	}

	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	for {
		if r.ctx.Err() != nil {
			return
		}

		doneC, stopC, err := futures.WsKlineServe(symbol, r.interval, handler, errHandler)
		if err != nil {
			log.WithError(err).Error("failed to subscribe to kline stream")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		select {
		case <-r.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			log.Warn("kline stream closed, reconnecting")
			close(stopC)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}
