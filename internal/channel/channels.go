package channel

import (
	"rektflow/config"
	"rektflow/internal/channel/kline"
	"rektflow/internal/channel/liq"
	"rektflow/internal/channel/oi"
	"rektflow/internal/channel/ratio"
	"rektflow/logger"
)

// Channels aggregates the per-stream buses so that wiring code and metrics
// can reach every buffer through one handle.
type Channels struct {
	Liq   *liq.Channels
	Kline *kline.Channels
	OI    *oi.Channels
	Ratio *ratio.Channels

	log *logger.Log
}

func NewChannels(cfg *config.Config) *Channels {
	raw := cfg.Channels.RawBuffer
	processed := cfg.Channels.ProcessedBuffer

	return &Channels{
		Liq:   liq.NewChannels(raw, processed),
		Kline: kline.NewChannels(raw, processed),
		OI:    oi.NewChannels(raw, processed),
		Ratio: ratio.NewChannels(raw, processed),
		log:   logger.GetLogger(),
	}
}

func (c *Channels) Close() {
	c.Liq.Close()
	c.Kline.Close()
	c.OI.Close()
	c.Ratio.Close()
	c.log.WithComponent("channels").Info("all channels closed")
}
