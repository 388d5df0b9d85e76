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

	"tradesim/config"
	"tradesim/internal/channel"
	"tradesim/internal/marketdata"
	"tradesim/internal/server"
	"tradesim/internal/simulator"
	"tradesim/logger"
	"tradesim/reader/okx"
	"tradesim/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Metrics.CloudWatchEnabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Tradesim.Name,
		"version":     cfg.Tradesim.Version,
		"environment": env,
	}).Info("starting tradesim")

	if config.IsProductionLike(env) && !cfg.Metrics.CloudWatchEnabled {
		log.WithComponent("main").Warn("cloudwatch metrics disabled in a production-like environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.RecorderBuffer,
	)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	cache := marketdata.NewCache(cfg.Cache.HistoryDepth, cfg.Cache.LatencySamples)
	processor := marketdata.NewProcessor(cache, channels, cfg.Recorder.Enabled)
	feedReader := okx.NewReader(cfg, channels)
	sim := simulator.New(cache, cfg.Simulator.RiskAversion, cfg.Simulator.DepthLevels)

	var recorder *writer.Recorder
	if cfg.Recorder.Enabled {
		recorder, err = writer.NewRecorder(cfg, channels)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot recorder")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("snapshot recorder disabled")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedReader.Start(ctx); err != nil {
			log.WithError(err).Warn("feed reader failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := processor.Start(ctx); err != nil {
			log.WithError(err).Warn("market data processor failed to start")
		}
	}()

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Start(ctx); err != nil {
				log.WithError(err).Warn("snapshot recorder failed to start")
			}
		}()
	}

	if cfg.Server.Enabled {
		httpServer := server.NewServer(cfg, sim, cache, feedReader.Connected)
		httpServer.Start(ctx)
	} else {
		log.WithComponent("main").Info("http server disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if recorder != nil {
		log.Info("stopping snapshot recorder")
		recorder.Stop()
	}

	log.Info("stopping market data processor")
	processor.Stop()

	log.Info("stopping feed reader")
	feedReader.Stop()

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

	log.Info("tradesim stopped")
}
