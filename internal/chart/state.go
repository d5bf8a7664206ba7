package chart

import (
	"context"
	"fmt"
	"sort"
	"sync"

	appconfig "rektflow/config"
	"rektflow/internal/channel"
	"rektflow/internal/metrics"
	"rektflow/internal/models"
	"rektflow/internal/rekt"
	"rektflow/logger"
)

// Update notifies subscribers that one series of one symbol changed.
type Update struct {
	Symbol string `json:"symbol"`
	Series string `json:"series"`
}

const (
	SeriesMarkers       = "markers"
	SeriesCandles       = "candles"
	SeriesOpenInterest  = "open_interest"
	SeriesPositionRatio = "position_ratio"
	SeriesAnchors       = "anchors"
	SeriesPivots        = "pivots"
)

// symbolState holds every live series for one symbol. All access goes
// through the owning State's mutex, which keeps the core recomputes
// single-threaded per symbol.
type symbolState struct {
	events      []models.LiquidationEvent
	candles     []models.Candle
	volume      []models.VolumePoint
	oi          []models.OpenInterestPoint
	ratio       []models.PositionRatioPoint
	markers     []rekt.Marker
	baseMarkers []rekt.Marker
	pivots      rekt.PivotPoints
	engine      *rekt.Engine
}

// State consumes processed stream updates, maintains per-symbol series and
// recomputes markers, pivots and anchored indicators on every change.
type State struct {
	config   *appconfig.Config
	channels *channel.Channels

	mu      sync.RWMutex
	symbols map[string]*symbolState

	subMu       sync.Mutex
	subscribers map[int]chan Update
	nextSubID   int

	intervalSeconds int64

	ctx     context.Context
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool
	log     *logger.Log
}

func NewState(cfg *appconfig.Config, ch *channel.Channels) (*State, error) {
	intervalSeconds, err := rekt.ParseInterval(cfg.Chart.Interval)
	if err != nil {
		return nil, fmt.Errorf("chart interval: %w", err)
	}

	return &State{
		config:          cfg,
		channels:        ch,
		symbols:         make(map[string]*symbolState),
		subscribers:     make(map[int]chan Update),
		intervalSeconds: intervalSeconds,
		log:             logger.GetLogger(),
	}, nil
}

// Start launches the consumer loops for every processed stream.
func (s *State) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("chart state already running")
	}
	s.running = true
	s.ctx = ctx
	s.runMu.Unlock()

	s.log.WithComponent("chart_state").WithFields(logger.Fields{
		"interval": s.config.Chart.Interval,
	}).Info("starting chart state")

	s.wg.Add(4)
	go s.consumeEvents()
	go s.consumeCandles()
	go s.consumeOpenInterest()
	go s.consumeRatio()
	return nil
}

func (s *State) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	s.wg.Wait()

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()

	s.log.WithComponent("chart_state").Info("chart state stopped")
}

// Subscribe returns a channel of update notifications and a cancel func.
// Slow subscribers miss updates rather than blocking the pipeline.
func (s *State) Subscribe() (<-chan Update, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	ch := make(chan Update, 64)
	s.subscribers[id] = ch

	cancel := func() {
		s.subMu.Lock()
		if c, ok := s.subscribers[id]; ok {
			close(c)
			delete(s.subscribers, id)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *State) notify(symbol, series string) {
	s.subMu.Lock()
	for _, ch := range s.subscribers {
		select {
		case ch <- Update{Symbol: symbol, Series: series}:
		default:
		}
	}
	s.subMu.Unlock()
}

func (s *State) consumeEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt, ok := <-s.channels.Liq.Events:
			if !ok {
				return
			}
			s.ApplyEvent(evt)
		}
	}
}

func (s *State) consumeCandles() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case upd, ok := <-s.channels.Kline.Candles:
			if !ok {
				return
			}
			s.ApplyCandle(upd)
		}
	}
}

func (s *State) consumeOpenInterest() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case point, ok := <-s.channels.OI.Points:
			if !ok {
				return
			}
			s.ApplyOpenInterest(point)
		}
	}
}

func (s *State) consumeRatio() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case point, ok := <-s.channels.Ratio.Points:
			if !ok {
				return
			}
			s.ApplyPositionRatio(point)
		}
	}
}

func (s *State) symbolState(symbol string) *symbolState {
	st, ok := s.symbols[symbol]
	if !ok {
		st = &symbolState{
			pivots: rekt.PivotPoints{Highs: []int{}, Lows: []int{}},
			engine: rekt.NewEngine(),
		}
		s.symbols[symbol] = st
	}
	return st
}

// ApplyEvent folds one normalized liquidation event into the symbol's
// history and recomputes the marker set and every value-anchored series.
func (s *State) ApplyEvent(evt models.LiquidationEvent) {
	s.mu.Lock()
	st := s.symbolState(evt.Symbol)
	st.events = append(st.events, evt)
	s.trimEvents(st)
	s.recomputeMarkers(evt.Symbol, st)
	s.recomputeAnchors(st)
	s.mu.Unlock()

	s.notify(evt.Symbol, SeriesMarkers)
	s.notify(evt.Symbol, SeriesAnchors)
}

// SeedEvents replaces the liquidation history wholesale, used by backfill.
func (s *State) SeedEvents(symbol string, events []models.LiquidationEvent) {
	s.mu.Lock()
	st := s.symbolState(symbol)
	st.events = append([]models.LiquidationEvent(nil), events...)
	s.trimEvents(st)
	s.recomputeMarkers(symbol, st)
	s.recomputeAnchors(st)
	s.mu.Unlock()

	s.notify(symbol, SeriesMarkers)
	s.notify(symbol, SeriesAnchors)
}

// SeedCandles replaces the candle history wholesale, used by backfill.
func (s *State) SeedCandles(symbol string, candles []models.Candle) {
	s.mu.Lock()
	st := s.symbolState(symbol)
	st.candles = append([]models.Candle(nil), candles...)
	st.volume = st.volume[:0]
	for _, c := range st.candles {
		st.volume = append(st.volume, models.VolumePoint{Symbol: symbol, Time: c.Time, Value: c.Volume})
	}
	s.trimCandles(st)
	s.recomputePivots(st)
	s.recomputeAnchors(st)
	s.mu.Unlock()

	s.notify(symbol, SeriesCandles)
	s.notify(symbol, SeriesPivots)
}

// ApplyCandle live-merges one candle update. Stale updates are dropped with
// a warning; an equal-time update revises the in-progress bar.
func (s *State) ApplyCandle(upd models.CandleUpdate) {
	s.mu.Lock()
	st := s.symbolState(upd.Symbol)

	var outcome rekt.MergeOutcome
	st.candles, outcome = rekt.Merge(st.candles, upd.Candle)
	if outcome == rekt.MergeStale {
		s.mu.Unlock()
		metrics.IncrementStalePoint(upd.Symbol, SeriesCandles)
		s.log.WithComponent("chart_state").WithFields(logger.Fields{
			"symbol": upd.Symbol,
			"time":   upd.Candle.Time,
		}).Warn("dropping stale candle update")
		return
	}

	st.volume, _ = rekt.Merge(st.volume, models.VolumePoint{
		Symbol: upd.Symbol,
		Time:   upd.Candle.Time,
		Value:  upd.Candle.Volume,
	})
	s.trimCandles(st)
	s.recomputePivots(st)
	s.recomputeAnchors(st)
	s.mu.Unlock()

	s.notify(upd.Symbol, SeriesCandles)
	s.notify(upd.Symbol, SeriesPivots)
	s.notify(upd.Symbol, SeriesAnchors)
}

// ApplyOpenInterest live-merges one open interest point.
func (s *State) ApplyOpenInterest(point models.OpenInterestPoint) {
	s.mu.Lock()
	st := s.symbolState(point.Symbol)
	var outcome rekt.MergeOutcome
	st.oi, outcome = rekt.Merge(st.oi, point)
	s.mu.Unlock()

	if outcome == rekt.MergeStale {
		metrics.IncrementStalePoint(point.Symbol, SeriesOpenInterest)
		s.log.WithComponent("chart_state").WithFields(logger.Fields{
			"symbol": point.Symbol,
			"time":   point.Time,
		}).Warn("dropping stale open interest point")
		return
	}
	s.notify(point.Symbol, SeriesOpenInterest)
}

// ApplyPositionRatio live-merges one position ratio point.
func (s *State) ApplyPositionRatio(point models.PositionRatioPoint) {
	s.mu.Lock()
	st := s.symbolState(point.Symbol)
	var outcome rekt.MergeOutcome
	st.ratio, outcome = rekt.Merge(st.ratio, point)
	s.mu.Unlock()

	if outcome == rekt.MergeStale {
		metrics.IncrementStalePoint(point.Symbol, SeriesPositionRatio)
		s.log.WithComponent("chart_state").WithFields(logger.Fields{
			"symbol": point.Symbol,
			"time":   point.Time,
		}).Warn("dropping stale position ratio point")
		return
	}
	s.notify(point.Symbol, SeriesPositionRatio)
}

func (s *State) markerConfig(symbol string, withTrend bool) rekt.MarkerConfig {
	chart := s.config.Chart
	cfg := rekt.MarkerConfig{
		Symbol:          symbol,
		IntervalSeconds: s.intervalSeconds,
		PercentileLow:   chart.PercentileLow(),
		PercentileHigh:  chart.PercentileHigh(),
		TopMarkersCount: chart.TopMarkersCount,
	}
	if withTrend {
		cfg.TrendAbove = trendRule(chart.Trend.Above)
		cfg.TrendBelow = trendRule(chart.Trend.Below)
	}
	return cfg
}

func trendRule(c appconfig.TrendSideConfig) rekt.TrendRule {
	return rekt.TrendRule{
		Enabled:    c.Enabled,
		Lookback:   c.Lookback,
		TrendColor: c.TrendColor,
		FadeColor:  c.FadeColor,
		HideFaded:  c.HideFaded,
	}
}

func (s *State) recomputeMarkers(symbol string, st *symbolState) {
	markers, err := rekt.SynthesizeMarkers(st.events, s.markerConfig(symbol, true))
	if err != nil {
		s.log.WithComponent("chart_state").WithError(err).Warn("marker recompute failed")
		return
	}
	st.markers = markers

	// Value-anchored series fold the pre-trend markers so that a faded
	// marker still contributes its liquidation value.
	base, err := rekt.SynthesizeMarkers(st.events, s.markerConfig(symbol, false))
	if err == nil {
		st.baseMarkers = base
	}

	metrics.SetMarkersSynthesized(symbol, len(markers))
}

// recomputePivots detects highs and lows with their own window lengths, so
// the two sides of the pivot config act independently.
func (s *State) recomputePivots(st *symbolState) {
	high := s.config.Chart.Pivot.High
	low := s.config.Chart.Pivot.Low
	st.pivots = rekt.PivotPoints{
		Highs: rekt.FindPivotPoints(st.candles, high.LeftLen, high.RightLen).Highs,
		Lows:  rekt.FindPivotPoints(st.candles, low.LeftLen, low.RightLen).Lows,
	}
}

func (s *State) recomputeAnchors(st *symbolState) {
	for _, anchor := range st.engine.Anchors() {
		st.engine.Recompute(anchor, st.candles, st.baseMarkers)
	}
}

func (s *State) trimCandles(st *symbolState) {
	limit := s.config.Chart.HistoryLimit
	if limit > 0 && len(st.candles) > limit {
		st.candles = append(st.candles[:0:0], st.candles[len(st.candles)-limit:]...)
	}
	if limit > 0 && len(st.volume) > limit {
		st.volume = append(st.volume[:0:0], st.volume[len(st.volume)-limit:]...)
	}
	s.trimEvents(st)
}

// eventsPerBarCap bounds the liquidation history when there is no candle
// window to trim against, such as a deployment with the kline stream
// disabled.
const eventsPerBarCap = 16

// trimEvents keeps liquidation history aligned with the candle window so
// markers never extend past the visible chart range. Without candles it
// falls back to a count cap scaled from the history limit.
func (s *State) trimEvents(st *symbolState) {
	if len(st.events) == 0 {
		return
	}
	if len(st.candles) == 0 {
		limit := s.config.Chart.HistoryLimit * eventsPerBarCap
		if limit > 0 && len(st.events) > limit {
			st.events = append(st.events[:0:0], st.events[len(st.events)-limit:]...)
		}
		return
	}
	oldest := st.candles[0].Time
	cut := 0
	for cut < len(st.events) && st.events[cut].Time < oldest {
		cut++
	}
	if cut > 0 {
		st.events = append(st.events[:0:0], st.events[cut:]...)
	}
}

// Symbols lists every symbol with any accumulated state, sorted.
func (s *State) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Markers returns the current marker set for a symbol.
func (s *State) Markers(symbol string) []rekt.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	return append([]rekt.Marker(nil), st.markers...)
}

// HigherTimeframeMarkers synthesizes the overlay marker set at triple the
// configured interval, the secondary timeframe the chart renders behind the
// primary markers.
func (s *State) HigherTimeframeMarkers(symbol string) []rekt.Marker {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	events := append([]models.LiquidationEvent(nil), st.events...)
	s.mu.RUnlock()

	seconds, err := rekt.ParseInterval(rekt.TripleInterval(s.config.Chart.Interval))
	if err != nil {
		return nil
	}
	cfg := s.markerConfig(symbol, true)
	cfg.IntervalSeconds = seconds

	markers, err := rekt.SynthesizeMarkers(events, cfg)
	if err != nil {
		s.log.WithComponent("chart_state").WithError(err).Warn("higher timeframe marker recompute failed")
		return nil
	}
	return markers
}

// Candles returns the candle history for a symbol.
func (s *State) Candles(symbol string) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	return append([]models.Candle(nil), st.candles...)
}

// Volume returns the volume histogram for a symbol.
func (s *State) Volume(symbol string) []models.VolumePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	return append([]models.VolumePoint(nil), st.volume...)
}

// OpenInterest returns the open interest series for a symbol.
func (s *State) OpenInterest(symbol string) []models.OpenInterestPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	return append([]models.OpenInterestPoint(nil), st.oi...)
}

// PositionRatio returns the position ratio series for a symbol.
func (s *State) PositionRatio(symbol string) []models.PositionRatioPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	return append([]models.PositionRatioPoint(nil), st.ratio...)
}

// Pivots returns the pivot indexes detected on the symbol's candle series.
func (s *State) Pivots(symbol string) rekt.PivotPoints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return rekt.PivotPoints{Highs: []int{}, Lows: []int{}}
	}
	return rekt.PivotPoints{
		Highs: append([]int(nil), st.pivots.Highs...),
		Lows:  append([]int(nil), st.pivots.Lows...),
	}
}

// Anchors returns snapshots of every anchored series for a symbol.
func (s *State) Anchors(symbol string) []rekt.AnchoredSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.symbols[symbol]
	if !ok {
		return nil
	}
	anchors := st.engine.Anchors()
	out := make([]rekt.AnchoredSeries, 0, len(anchors))
	for _, a := range anchors {
		snapshot := *a
		snapshot.Points = append([]rekt.SeriesPoint(nil), a.Points...)
		out = append(out, snapshot)
	}
	return out
}

// CreateAnchor adds an anchored indicator at the given time and recomputes
// it immediately. Creating a duplicate (time, kind) pair returns the
// existing series.
func (s *State) CreateAnchor(symbol string, anchorTime int64, kind rekt.AnchorKind, color string, lineWidth int) (rekt.AnchoredSeries, error) {
	if anchorTime <= 0 {
		return rekt.AnchoredSeries{}, fmt.Errorf("anchor time must be positive, got %d", anchorTime)
	}

	s.mu.Lock()
	st := s.symbolState(symbol)
	anchor := st.engine.CreateAnchor(anchorTime, kind, color, lineWidth)
	st.engine.Recompute(anchor, st.candles, st.baseMarkers)
	snapshot := *anchor
	snapshot.Points = append([]rekt.SeriesPoint(nil), anchor.Points...)
	s.mu.Unlock()

	s.notify(symbol, SeriesAnchors)
	return snapshot, nil
}

// RemoveAnchor deletes an anchored series by id.
func (s *State) RemoveAnchor(symbol, id string) bool {
	s.mu.Lock()
	st, ok := s.symbols[symbol]
	var removed bool
	if ok {
		removed = st.engine.RemoveAnchor(id)
	}
	s.mu.Unlock()

	if removed {
		s.notify(symbol, SeriesAnchors)
	}
	return removed
}

// AnchorTopMarkers creates anchors of the given kind at the n markers with
// the largest aggregate value, mirroring the dashboard's bulk-add action.
func (s *State) AnchorTopMarkers(symbol string, kind rekt.AnchorKind, n int) []rekt.AnchoredSeries {
	if n <= 0 {
		return nil
	}

	s.mu.Lock()
	st := s.symbolState(symbol)

	ranked := append([]rekt.Marker(nil), st.baseMarkers...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })
	if n < len(ranked) {
		ranked = ranked[:n]
	}

	out := make([]rekt.AnchoredSeries, 0, len(ranked))
	for _, m := range ranked {
		anchor := st.engine.CreateAnchor(m.Time, kind, m.Color, 1)
		st.engine.Recompute(anchor, st.candles, st.baseMarkers)
		snapshot := *anchor
		snapshot.Points = append([]rekt.SeriesPoint(nil), anchor.Points...)
		out = append(out, snapshot)
	}
	s.mu.Unlock()

	if len(out) > 0 {
		s.notify(symbol, SeriesAnchors)
	}
	return out
}

// CombinedIndicator returns the mean of the VWAP and ALWAP series anchored
// at the given time, smoothed with the configured period.
func (s *State) CombinedIndicator(symbol string, anchorTime int64) []rekt.SeriesPoint {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	combined := rekt.CombinedSeries(st.candles, st.baseMarkers, anchorTime, "")
	s.mu.RUnlock()

	return rekt.SmoothSeries(combined, s.config.Chart.SmoothingPeriod)
}
