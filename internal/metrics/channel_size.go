package metrics

import (
	"context"
	"time"

	"rektflow/internal/channel"
	"rektflow/logger"
)

// StartChannelSizeMetrics emits occupancy metrics for every stream buffer.
// Metrics are logged every `interval` until the context is cancelled. When
// interval <= 0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if channels.Liq != nil {
					EmitMetric(log, component, "liq_raw_buffer_length", len(channels.Liq.Raw), "gauge", logger.Fields{
						"buffer":   "liq_raw",
						"capacity": cap(channels.Liq.Raw),
					})
					EmitMetric(log, component, "liq_event_buffer_length", len(channels.Liq.Events), "gauge", logger.Fields{
						"buffer":   "liq_events",
						"capacity": cap(channels.Liq.Events),
					})
					EmitMetric(log, component, "liq_batch_buffer_length", len(channels.Liq.Batches), "gauge", logger.Fields{
						"buffer":   "liq_batches",
						"capacity": cap(channels.Liq.Batches),
					})
				}
				if channels.Kline != nil {
					EmitMetric(log, component, "kline_raw_buffer_length", len(channels.Kline.Raw), "gauge", logger.Fields{
						"buffer":   "kline_raw",
						"capacity": cap(channels.Kline.Raw),
					})
					EmitMetric(log, component, "kline_candle_buffer_length", len(channels.Kline.Candles), "gauge", logger.Fields{
						"buffer":   "kline_candles",
						"capacity": cap(channels.Kline.Candles),
					})
				}
				if channels.OI != nil {
					EmitMetric(log, component, "oi_raw_buffer_length", len(channels.OI.Raw), "gauge", logger.Fields{
						"buffer":   "oi_raw",
						"capacity": cap(channels.OI.Raw),
					})
					EmitMetric(log, component, "oi_point_buffer_length", len(channels.OI.Points), "gauge", logger.Fields{
						"buffer":   "oi_points",
						"capacity": cap(channels.OI.Points),
					})
				}
				if channels.Ratio != nil {
					EmitMetric(log, component, "ratio_raw_buffer_length", len(channels.Ratio.Raw), "gauge", logger.Fields{
						"buffer":   "ratio_raw",
						"capacity": cap(channels.Ratio.Raw),
					})
					EmitMetric(log, component, "ratio_point_buffer_length", len(channels.Ratio.Points), "gauge", logger.Fields{
						"buffer":   "ratio_points",
						"capacity": cap(channels.Ratio.Points),
					})
				}
			}
		}
	}()
}
