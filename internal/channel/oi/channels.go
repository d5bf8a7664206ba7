package oi

import (
	"context"
	"sync"

	"rektflow/internal/models"
	"rektflow/logger"
)

type ChannelStats struct {
	RawSent      int64
	RawDropped   int64
	PointSent    int64
	PointDropped int64
}

// Channels carries open interest observations between the reader and the
// chart state.
type Channels struct {
	Raw    chan models.RawOIMessage
	Points chan models.OpenInterestPoint

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, processedBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.RawOIMessage, rawBufferSize),
		Points: make(chan models.OpenInterestPoint, processedBufferSize),
		log:    log,
	}

	log.WithComponent("oi_channels").WithFields(logger.Fields{
		"raw_buffer_size":       rawBufferSize,
		"processed_buffer_size": processedBufferSize,
	}).Info("open interest channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Points)
	c.log.WithComponent("oi_channels").Info("open interest channels closed")
}

func (c *Channels) SendRaw(ctx context.Context, msg models.RawOIMessage) bool {
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

func (c *Channels) SendPoint(ctx context.Context, p models.OpenInterestPoint) bool {
	select {
	case c.Points <- p:
		c.bump(func(s *ChannelStats) { s.PointSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.bump(func(s *ChannelStats) { s.PointDropped++ })
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
