package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/batulgn/gipfeed/configs"
	"github.com/batulgn/gipfeed/internal/aof"
	"github.com/batulgn/gipfeed/internal/auth"
	"github.com/batulgn/gipfeed/internal/feed"
	"github.com/batulgn/gipfeed/internal/ingester"
	"github.com/batulgn/gipfeed/internal/notify"
	"github.com/batulgn/gipfeed/internal/parser"
	"github.com/batulgn/gipfeed/internal/storage"
)

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

func main() {
	logger := newLogger()
	cfg := configs.AppLoad()

	if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
		logger.Fatal("EPIAS_USER and EPIAS_PASS must be set")
	}

	store, err := storage.Open(storage.Config{
		DBPath:       cfg.Storage.DBPath,
		TradeLogPath: cfg.Storage.TradeLogPath,
		BoardLogPath: cfg.Storage.BoardLogPath,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	var sink notify.Sink = notify.Nop{}
	if cfg.Notify.Broker != "" {
		sink = notify.NewKafkaSink(cfg.Notify.Broker, cfg.Notify.Topic, logger)
		logger.Infof("Trade notifications enabled on %s/%s", cfg.Notify.Broker, cfg.Notify.Topic)
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, channel := range cfg.Channels {
		broker := auth.NewBroker(auth.Config{
			Username:      cfg.Auth.Username,
			Password:      cfg.Auth.Password,
			TicketURL:     cfg.Auth.TicketURL,
			SessionURL:    cfg.Auth.SessionURL,
			StreamHost:    cfg.Auth.StreamHost,
			ServicePrefix: cfg.Auth.ServicePrefix,
			Channels:      []string{channel},
		}, logger)

		pipeline := ingester.NewPipeline(
			parser.New(configs.TradeHistoryChannel, configs.ContractBoardChannel, logger),
			aof.New(aof.DefaultHorizon),
			store,
			sink,
			logger,
		)

		sup := ingester.NewSupervisor(
			channel,
			broker,
			feed.NewConn(feed.DefaultConfig(), logger),
			pipeline.HandleFrame,
			cfg.Cooldown,
			logger,
		)

		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			logger.Infof("Starting supervisor for %s", channel)
			sup.Run(ctx)
		}(channel)
	}

	logger.Infof("Ingest started for %d channel(s)", len(cfg.Channels))
	wg.Wait()
	logger.Info("Ingest shutdown complete")
}
