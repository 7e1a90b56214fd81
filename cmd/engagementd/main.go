package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagement/internal/api"
	"engagement/internal/config"
	"engagement/internal/engine"
	"engagement/internal/indicator"
	"engagement/internal/ingest"
	"engagement/internal/logging"
	"engagement/internal/model"
	"engagement/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "engagement.yaml", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "engagementd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var mgr *config.Manager
	path := config.ResolvePath(configPath)
	if _, err := os.Stat(path); err == nil {
		m, err := config.NewManager(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		mgr = m
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}

	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting", "version", version, "config", path)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Init(initCtx); err != nil {
		initCancel()
		return fmt.Errorf("init store: %w", err)
	}
	initCancel()

	registry := indicator.NewRegistry(logger)
	eng := engine.New(store, registry, mgr, logger)

	events := make(chan model.ActivityEvent, cfg.Ingest.ChannelBuffer)
	go ingest.RunWriter(ctx, store, events, logging.Component(logger, "ingest"))
	ingest.StartKafka(ctx, mgr, events, logging.Component(logger, "kafka"))
	ingest.StartREST(ctx, mgr, events, logging.Component(logger, "rest"))

	api.Start(ctx, mgr, store, eng, logging.Component(logger, "api"), version)

	if mgr.Path() != "" {
		go mgr.Watch(3*time.Second,
			func(c *config.Config) { logger.Info("config reloaded", "log_level", c.LogLevel) },
			func(err error) { logger.Warn("config reload failed", "err", err) },
			ctx.Done())
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
