package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"rektflow/config"
	"rektflow/internal/channel"
	"rektflow/internal/chart"
	"rektflow/internal/dashboard"
	"rektflow/internal/metrics"
	"rektflow/internal/processor"
	"rektflow/internal/reader/binance"
	"rektflow/internal/writer"
	"rektflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Rektflow.Name,
		"version": cfg.Rektflow.Version,
	}).Info("starting rektflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Prometheus.Enabled {
		metrics.Init(cfg.Metrics.Prometheus.Address)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
		if err := metrics.CreateDashboardFromTemplate(ctx); err != nil {
			log.WithError(err).Warn("failed to create CloudWatch dashboard")
		}
	}

	channels := channel.NewChannels(cfg)
	defer channels.Close()

	go metrics.StartChannelSizeMetrics(ctx, channels, 30*time.Second)

	restLimiter := rate.NewLimiter(
		rate.Limit(cfg.Source.Rest.RequestsPerSecond),
		cfg.Source.Rest.BurstSize,
	)

	future := cfg.Source.Binance.Future

	var liqReader *binance.Binance_LIQ_Reader
	if future.Liquidation.Enabled {
		liqReader = binance.Binance_LIQ_NewReader(cfg, channels.Liq, future.Liquidation.Symbols)
	}
	var klineReader *binance.Binance_KLINE_Reader
	if future.Kline.Enabled {
		klineReader = binance.Binance_KLINE_NewReader(cfg, channels.Kline, future.Kline.Symbols)
	}
	var oiReader *binance.Binance_OI_Reader
	if future.OpenInterest.Enabled {
		oiReader = binance.Binance_OI_NewReader(cfg, channels.OI, future.OpenInterest.Symbols)
	}
	var ratioReader *binance.Binance_RATIO_Reader
	if future.PositionRatio.Enabled {
		ratioReader = binance.Binance_RATIO_NewReader(cfg, channels.Ratio, future.PositionRatio.Symbols, restLimiter)
	}

	liqProcessor := processor.NewLiquidationProcessor(cfg, channels.Liq)
	klineProcessor := processor.NewKlineProcessor(cfg, channels.Kline)
	oiProcessor := processor.NewOpenInterestProcessor(cfg, channels.OI)
	ratioProcessor := processor.NewPositionRatioProcessor(cfg, channels.Ratio)

	state, err := chart.NewState(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create chart state")
		os.Exit(1)
	}

	var liqWriter *writer.LiquidationWriter
	if cfg.Storage.S3.Enabled {
		liqWriter, err = writer.NewLiquidationWriter(cfg, channels.Liq.Batches)
		if err != nil {
			log.WithError(err).Error("failed to create S3 writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	dashboardServer, err := dashboard.NewServer(cfg.Dashboard, state, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if err := state.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start chart state")
		os.Exit(1)
	}

	if err := liqProcessor.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start liquidation processor")
		os.Exit(1)
	}
	if err := klineProcessor.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start kline processor")
		os.Exit(1)
	}
	if err := oiProcessor.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start open interest processor")
		os.Exit(1)
	}
	if err := ratioProcessor.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start position ratio processor")
		os.Exit(1)
	}

	// Seed candle history before the live streams start appending so the
	// first websocket bar merges onto a full chart window.
	if future.Kline.Enabled {
		backfiller := binance.NewBackfiller(cfg, restLimiter)
		for _, symbol := range future.Kline.Symbols {
			candles, err := backfiller.Candles(ctx, symbol, cfg.Chart.HistoryLimit)
			if err != nil {
				log.WithComponent("main").WithError(err).WithFields(logger.Fields{
					"symbol": symbol,
				}).Warn("candle backfill failed")
				continue
			}
			state.SeedCandles(symbol, candles)
		}
	}

	if liqReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqReader.Binance_LIQ_Start(ctx); err != nil {
				log.WithError(err).Warn("liquidation reader failed to start")
			}
		}()
	}
	if klineReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := klineReader.Binance_KLINE_Start(ctx); err != nil {
				log.WithError(err).Warn("kline reader failed to start")
			}
		}()
	}
	if oiReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := oiReader.Binance_OI_Start(ctx); err != nil {
				log.WithError(err).Warn("open interest reader failed to start")
			}
		}()
	}
	if ratioReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ratioReader.Binance_RATIO_Start(ctx); err != nil {
				log.WithError(err).Warn("position ratio reader failed to start")
			}
		}()
	}

	if liqWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("s3 writer failed to start")
			}
		}()
	}

	if dashboardServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dashboardServer.Run(ctx); err != nil {
				log.WithError(err).Warn("dashboard server exited with error")
			}
		}()
		log.WithFields(logger.Fields{"address": dashboardServer.Address()}).Info("dashboard listening")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if liqWriter != nil {
		log.Info("stopping S3 writer")
		liqWriter.Stop()
	}

	if liqReader != nil {
		log.Info("stopping liquidation reader")
		liqReader.Binance_LIQ_Stop()
	}
	if klineReader != nil {
		log.Info("stopping kline reader")
		klineReader.Binance_KLINE_Stop()
	}
	if oiReader != nil {
		log.Info("stopping open interest reader")
		oiReader.Binance_OI_Stop()
	}
	if ratioReader != nil {
		log.Info("stopping position ratio reader")
		ratioReader.Binance_RATIO_Stop()
	}

	log.Info("stopping processors")
	liqProcessor.Stop()
	klineProcessor.Stop()
	oiProcessor.Stop()
	ratioProcessor.Stop()

	log.Info("stopping chart state")
	state.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("rektflow stopped")
}
