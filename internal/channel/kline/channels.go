package kline

import (
	"context"
	"sync"

	"rektflow/internal/models"
	"rektflow/logger"
)

type ChannelStats struct {
	RawSent       int64
	RawDropped    int64
	CandleSent    int64
	CandleDropped int64
}

// Channels carries candlestick data between the reader, the processor and the
// chart state.
type Channels struct {
	Raw     chan models.RawKlineMessage
	Candles chan models.CandleUpdate

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, processedBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:     make(chan models.RawKlineMessage, rawBufferSize),
		Candles: make(chan models.CandleUpdate, processedBufferSize),
		log:     log,
	}

	log.WithComponent("kline_channels").WithFields(logger.Fields{
		"raw_buffer_size":       rawBufferSize,
		"processed_buffer_size": processedBufferSize,
	}).Info("kline channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Candles)
	c.log.WithComponent("kline_channels").Info("kline channels closed")
}

func (c *Channels) SendRaw(ctx context.Context, msg models.RawKlineMessage) bool {
	select {
	case c.Raw <- msg:
		c.bump(func(s *ChannelStats) { s.RawSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.bump(func(s *ChannelStats) { s.RawDropped++ })
		return false
	}
}

func (c *Channels) SendCandle(ctx context.Context, upd models.CandleUpdate) bool {
	select {
	case c.Candles <- upd:
		c.bump(func(s *ChannelStats) { s.CandleSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.bump(func(s *ChannelStats) { s.CandleDropped++ })
		return false
	}
}

func (c *Channels) bump(fn func(*ChannelStats)) {
	c.statsMutex.Lock()
	fn(&c.stats)
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
