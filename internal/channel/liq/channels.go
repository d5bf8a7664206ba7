package liq

import (
	"context"
	"sync"

	"rektflow/internal/models"
	"rektflow/logger"
)

type ChannelStats struct {
	RawSent      int64
	RawDropped   int64
	EventSent    int64
	EventDropped int64
	BatchSent    int64
	BatchDropped int64
}

// Channels carries liquidation data between pipeline stages. Raw holds
// exchange payloads, Events holds normalized events for the chart state and
// Batches holds grouped events for the archive writer.
type Channels struct {
	Raw     chan models.RawLiquidationMessage
	Events  chan models.LiquidationEvent
	Batches chan models.BatchLiquidationMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, processedBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:     make(chan models.RawLiquidationMessage, rawBufferSize),
		Events:  make(chan models.LiquidationEvent, processedBufferSize),
		Batches: make(chan models.BatchLiquidationMessage, processedBufferSize),
		log:     log,
	}

	log.WithComponent("liq_channels").WithFields(logger.Fields{
		"raw_buffer_size":       rawBufferSize,
		"processed_buffer_size": processedBufferSize,
	}).Info("liquidation channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Events)
	close(c.Batches)
	c.log.WithComponent("liq_channels").Info("liquidation channels closed")
}

func (c *Channels) SendRaw(ctx context.Context, msg models.RawLiquidationMessage) bool {
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

func (c *Channels) SendEvent(ctx context.Context, evt models.LiquidationEvent) bool {
	select {
	case c.Events <- evt:
		c.bump(func(s *ChannelStats) { s.EventSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.bump(func(s *ChannelStats) { s.EventDropped++ })
		return false
	}
}

func (c *Channels) SendBatch(ctx context.Context, batch models.BatchLiquidationMessage) bool {
	select {
	case c.Batches <- batch:
		c.bump(func(s *ChannelStats) { s.BatchSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.bump(func(s *ChannelStats) { s.BatchDropped++ })
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
