// Registers:
//
//	#RektFlow_liquidation_events_total
//	#RektFlow_malformed_messages_total
//	#RektFlow_markers_synthesized
//	#RektFlow_stale_points_total
//	#RektFlow_archive_batches_total
//	#go_* and process_* system metrics
//
// Exposes them on the configured address under /metrics using the
// Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rektflow/logger"
)

var (
	once              sync.Once
	liquidationEvents *prometheus.CounterVec
	malformedMessages *prometheus.CounterVec
	markersSynthGauge *prometheus.GaugeVec
	stalePoints       *prometheus.CounterVec
	archiveBatches    *prometheus.CounterVec
)

func Init(address string) {
	once.Do(func() {
		liquidationEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "RektFlow_liquidation_events_total",
				Help: "Number of normalized liquidation events accepted into the chart state",
			},
			[]string{"symbol", "side"},
		)

		malformedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "RektFlow_malformed_messages_total",
				Help: "Number of raw stream messages skipped during normalization",
			},
			[]string{"stream"},
		)

		markersSynthGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "RektFlow_markers_synthesized",
				Help: "Marker count produced by the latest recompute per symbol",
			},
			[]string{"symbol"},
		)

		stalePoints = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "RektFlow_stale_points_total",
				Help: "Number of live updates dropped for arriving out of order",
			},
			[]string{"symbol", "series"},
		)

		archiveBatches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "RektFlow_archive_batches_total",
				Help: "Number of liquidation batches written to S3",
			},
			[]string{"symbol", "status"},
		)

		_ = prometheus.Register(liquidationEvents)
		_ = prometheus.Register(malformedMessages)
		_ = prometheus.Register(markersSynthGauge)
		_ = prometheus.Register(stalePoints)
		_ = prometheus.Register(archiveBatches)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if address == "" {
			address = "0.0.0.0:2112"
		}

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(address, mux); err != nil {
				logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
			}
		}()
	})
}

// IncrementLiquidationEvent counts an accepted liquidation event.
func IncrementLiquidationEvent(symbol, side string) {
	if liquidationEvents != nil {
		liquidationEvents.WithLabelValues(symbol, side).Inc()
	}
}

// IncrementMalformed counts a skipped raw message for the given stream.
func IncrementMalformed(stream string) {
	if malformedMessages != nil {
		malformedMessages.WithLabelValues(stream).Inc()
	}
}

// SetMarkersSynthesized records the marker count of the latest recompute.
func SetMarkersSynthesized(symbol string, count int) {
	if markersSynthGauge != nil {
		markersSynthGauge.WithLabelValues(symbol).Set(float64(count))
	}
}

// IncrementStalePoint counts a dropped out-of-order live update.
func IncrementStalePoint(symbol, series string) {
	if stalePoints != nil {
		stalePoints.WithLabelValues(symbol, series).Inc()
	}
}

// IncrementArchiveBatch counts an archive write attempt by outcome.
func IncrementArchiveBatch(symbol, status string) {
	if archiveBatches != nil {
		archiveBatches.WithLabelValues(symbol, status).Inc()
	}
}
