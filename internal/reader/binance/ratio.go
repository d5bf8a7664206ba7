package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "rektflow/config"
	ratiochannel "rektflow/internal/channel/ratio"
	"rektflow/internal/metrics"
	"rektflow/internal/models"
	"rektflow/logger"
)

const topPositionRatioURL = "https://fapi.binance.com/futures/data/topLongShortPositionRatio"

// Binance_RATIO_Reader polls the top trader long/short position ratio REST
// endpoint. Binance exposes no websocket stream for this series, so the
// reader polls once per ratio period behind a shared rate limiter.
type Binance_RATIO_Reader struct {
	config   *appconfig.Config
	channels *ratiochannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
	limiter  *rate.Limiter
	client   *http.Client
}

// Binance_RATIO_NewReader constructs a new position ratio reader.
func Binance_RATIO_NewReader(cfg *appconfig.Config, ch *ratiochannel.Channels, symbols []string, limiter *rate.Limiter) *Binance_RATIO_Reader {
	return &Binance_RATIO_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
		limiter:  limiter,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Binance_RATIO_Start launches one polling worker per symbol.
func (r *Binance_RATIO_Reader) Binance_RATIO_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance position ratio reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Binance.Future.PositionRatio
	if !cfg.Enabled {
		r.log.WithComponent("binance_ratio_reader").Warn("binance position ratio disabled via configuration")
		return fmt.Errorf("binance position ratio disabled")
	}
	if len(r.symbols) == 0 {
		if len(cfg.Symbols) == 0 {
			return fmt.Errorf("no symbols configured for binance position ratio reader")
		}
		r.symbols = cfg.Symbols
	}

	period := cfg.Period
	if period == "" {
		period = "5m"
	}
	pollInterval, err := periodDuration(period)
	if err != nil {
		return fmt.Errorf("position ratio period: %w", err)
	}

	for _, symbol := range r.symbols {
		s := strings.ToUpper(symbol)
		r.wg.Add(1)
		go r.pollSymbol(s, period, pollInterval)
	}

	r.log.WithComponent("binance_ratio_reader").WithFields(logger.Fields{
		"symbols": r.symbols,
		"period":  period,
	}).Info("binance position ratio reader started")
	return nil
}

// Binance_RATIO_Stop waits for all polling workers to exit.
func (r *Binance_RATIO_Reader) Binance_RATIO_Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_ratio_reader").Info("stopping binance position ratio reader")
	r.wg.Wait()
	r.log.WithComponent("binance_ratio_reader").Info("binance position ratio reader stopped")
}

func periodDuration(period string) (time.Duration, error) {
	switch period {
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported period %q", period)
	}
}

func (r *Binance_RATIO_Reader) pollSymbol(symbol, period string, interval time.Duration) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_ratio_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"period": period,
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.fetchOnce(symbol, period, log)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.fetchOnce(symbol, period, log)
		}
	}
}

type topPositionRatioEntry struct {
	Symbol         string `json:"symbol"`
	LongShortRatio string `json:"longShortRatio"`
	LongAccount    string `json:"longAccount"`
	ShortAccount   string `json:"shortAccount"`
	Timestamp      int64  `json:"timestamp"`
}

func (r *Binance_RATIO_Reader) fetchOnce(symbol, period string, log *logger.Entry) {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return
	}

	url := fmt.Sprintf("%s?symbol=%s&period=%s&limit=1", topPositionRatioURL, symbol, period)
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("failed to build position ratio request")
		return
	}

	resp, err := r.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("position ratio request failed")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read position ratio response")
		return
	}
	if resp.StatusCode != http.StatusOK {
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("position ratio request rejected")
		return
	}

	var entries []topPositionRatioEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		log.WithError(err).Warn("failed to decode position ratio response")
		return
	}
	if len(entries) == 0 {
		return
	}

	entry := entries[len(entries)-1]
	ratio, _ := strconv.ParseFloat(entry.LongShortRatio, 64)
	longAcc, _ := strconv.ParseFloat(entry.LongAccount, 64)
	shortAcc, _ := strconv.ParseFloat(entry.ShortAccount, 64)

	msg := models.RawRatioMessage{
		Exchange:       "binance",
		Symbol:         strings.ToUpper(symbol),
		Market:         "position_ratio",
		LongShortRatio: ratio,
		LongAccount:    longAcc,
		ShortAccount:   shortAcc,
		Timestamp:      time.UnixMilli(entry.Timestamp),
		Payload:        body,
	}

	if !r.channels.SendRaw(r.ctx, msg) {
		if r.ctx.Err() != nil {
			return
		}
		metrics.EmitDropMetric(r.log, metrics.DropMetricPositionRatioRaw, "binance", "position_ratio", msg.Symbol, "raw")
		log.Warn("dropping binance position ratio message due to backpressure")
	}
}
