package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"binflow/config"
	"binflow/internal/channel"
	"binflow/internal/dispatch"
	"binflow/internal/lifecycle"
	"binflow/internal/metrics"
	"binflow/logger"
	"binflow/reader/binance"
	"binflow/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	// The dotenv file depends on the configured network, so pull it in and
	// load the configuration a second time to pick up the overrides.
	if err := godotenv.Load(config.EnvFile(cfg.Feed.Testnet)); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading dotenv file")
	}
	cfg, err = config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	log.WithFields(logger.Fields{
		"service": cfg.Binflow.Name,
		"version": cfg.Binflow.Version,
		"testnet": cfg.Feed.Testnet,
	}).Info("starting binflow")

	subs, err := cfg.Subscriptions()
	if err != nil {
		log.WithError(err).Error("Failed to build subscription set")
		return 1
	}
	log.WithFields(logger.Fields{
		"subscriptions": len(subs),
		"symbols":       len(cfg.Feed.Symbols),
		"streams":       len(cfg.Feed.Streams),
	}).Info("resolved subscription cross-product")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
		metrics.StartPublisher(ctx, cfg.Metrics.CloudWatch.Interval)
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create sinks")
		return 1
	}

	bus := channel.NewBus(cfg.Bus.Capacity)
	go bus.StartStatsReporting(ctx, 30*time.Second)

	dispatcher := dispatch.NewDispatcher(bus, sinks, cfg.Dispatcher.WriteTimeout)
	if err := dispatcher.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start dispatcher")
		return 1
	}

	reader := binance.NewStreamReader(cfg, bus, subs)
	if err := reader.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start stream reader")
		return 1
	}

	log.Info("all components started successfully")

	coord := lifecycle.NewCoordinator()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-reader.Done():
		log.Info("all subscriptions completed their sample limits")
	}

	coord.Advance(lifecycle.PhaseStopping)
	log.WithFields(logger.Fields{"phase": coord.Phase().String()}).Info("stopping stream readers")

	// A second signal during shutdown is the documented escape hatch.
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Warn("second signal received, exiting immediately")
		os.Exit(130)
	}()

	cancel()

	exitCode := 0
	select {
	case <-reader.Done():
		reader.Stop()
	case <-time.After(cfg.Shutdown.GracePeriod):
		log.WithFields(logger.Fields{
			"grace_period": cfg.Shutdown.GracePeriod.String(),
		}).Error("readers did not stop within the grace period; forcing flush")
		exitCode = 1
	}

	coord.Advance(lifecycle.PhaseDraining)
	log.WithFields(logger.Fields{
		"phase":  coord.Phase().String(),
		"queued": bus.Len(),
	}).Info("draining message bus")

	bus.Close()
	dispatcher.Stop()

	coord.Advance(lifecycle.PhaseFlushing)
	log.WithFields(logger.Fields{"phase": coord.Phase().String()}).Info("flushing sinks")

	for _, sink := range sinks {
		if err := sink.Flush(); err != nil {
			log.WithError(err).WithFields(logger.Fields{"sink": sink.Name()}).Error("sink flush failed")
			exitCode = 1
		}
		if err := sink.Close(); err != nil {
			log.WithError(err).WithFields(logger.Fields{"sink": sink.Name()}).Error("sink close failed")
			exitCode = 1
		}
	}

	coord.Advance(lifecycle.PhaseTerminated)

	snap := logger.SnapshotCounters()
	log.WithFields(logger.Fields{
		"frames_read": snap.FramesRead,
		"published":   snap.Published,
		"sink_writes": snap.SinkWrites,
		"sink_drops":  snap.SinkDrops,
	}).Info("binflow stopped")

	return exitCode
}

// buildSinks assembles the sink set from the configuration. Construction
// failures are fatal here; once the pipeline is running sink errors only
// drop the affected write.
func buildSinks(ctx context.Context, cfg *config.Config) ([]writer.Sink, error) {
	log := logger.GetLogger().WithComponent("main")
	var sinks []writer.Sink

	if cfg.Sinks.Console.Enabled {
		sinks = append(sinks, writer.NewConsoleSink(cfg.Sinks.Console.Mode))
	}

	if cfg.Sinks.Redis.Enabled {
		redisSink, err := writer.NewRedisSink(ctx, cfg.Sinks.Redis)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, redisSink)
	}

	if cfg.Sinks.File.Enabled {
		for _, format := range cfg.LineFormats() {
			lineSink, err := writer.NewLineSink(format, cfg.Sinks.File.OutputDir, cfg.Sinks.File.RotateLines)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, lineSink)
		}
		if cfg.ParquetEnabled() {
			parquetSink, err := writer.NewParquetSink(cfg.Sinks.File.OutputDir, cfg.Sinks.File.BatchSize, cfg.Sinks.File.Compression)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, parquetSink)
		}
	}

	if cfg.Sinks.S3.Enabled {
		s3Sink, err := writer.NewS3Sink(ctx, cfg.Sinks.S3, cfg.Binflow.Name, cfg.Binflow.Version)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}

	for _, s := range sinks {
		log.WithFields(logger.Fields{"sink": s.Name()}).Info("sink enabled")
	}
	return sinks, nil
}
