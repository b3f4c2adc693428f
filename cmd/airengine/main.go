package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/slbailey/airengine/internal/asrun"
	"github.com/slbailey/airengine/internal/asset"
	"github.com/slbailey/airengine/internal/config"
	"github.com/slbailey/airengine/internal/control"
	"github.com/slbailey/airengine/internal/evidence"
	"github.com/slbailey/airengine/internal/logger"
	"github.com/slbailey/airengine/internal/metrics"
	"github.com/slbailey/airengine/internal/pipeline"
	"github.com/slbailey/airengine/internal/transport"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level, using default: %v\n", err)
	}
	log := logger.Logger().With("component", "cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onConfigChange := func(cc config.ChannelConfig) {
		if err := logger.SetLevel(cc.LogLevel); err != nil {
			log.Warn("reloaded config carried an invalid log level, keeping current", "error", err)
		}
		log.Info("channel config reloaded; pad resolution and evidence endpoint apply to the next session start",
			"channel_id", cc.ChannelID, "pad_width", cc.PadWidth, "pad_height", cc.PadHeight)
	}
	watcher, channelCfg, err := config.NewWatcher(cfg.channelConfigPath, onConfigChange, log)
	if err != nil {
		log.Error("failed to load channel config", "error", err)
		os.Exit(1)
	}
	go watcher.Run(ctx)

	hub := evidence.NewHub(cfg.evidenceSpoolDir, 10, log)
	defer func() { _ = hub.Close() }()

	asrunWriter, err := asrun.NewWriter(cfg.asrunDir, channelCfg.ChannelID, log)
	if err != nil {
		log.Error("failed to open as-run writer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = asrunWriter.Close() }()

	metricsReg := metrics.NewRegistry()

	decoderFactory := asset.NewDecoderFactory(cfg.padWidth, cfg.padHeight, cfg.sampleRateHz, cfg.audioChannels, log)
	sinkFactory := transport.NewSinkFactory()

	reg := control.NewRegistry(decoderFactory, sinkFactory, hub, log)

	asrunCancels := newCancelSet()
	reg.SetOnSessionStart(func(channelID string, mgr *pipeline.Manager) {
		metricsReg.RegisterChannel(channelID, mgr)

		consumerCtx, cancel := context.WithCancel(ctx)
		asrunCancels.set(channelID, cancel)
		consumer := asrun.NewConsumer(hub, channelID, asrunWriter, nil, log)
		go func() {
			if err := consumer.Run(consumerCtx, -1); err != nil && consumerCtx.Err() == nil {
				log.Warn("as-run consumer stopped", "channel_id", channelID, "error", err)
			}
		}()
		log.Info("channel session started", "channel_id", channelID)
	})
	reg.SetOnSessionStop(func(channelID string) {
		metricsReg.UnregisterChannel(channelID)
		asrunCancels.cancel(channelID)
		log.Info("channel session stopped", "channel_id", channelID)
	})

	srv := control.NewServer(reg, hub)

	log.Info("starting control surface", "addr", cfg.controlListenAddr, "version", version)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(cfg.controlListenAddr) }()

	select {
	case err := <-serveErr:
		log.Error("control surface exited", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("control surface stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after shutdown timeout")
	}
}

// cancelSet tracks one context.CancelFunc per channel so the as-run
// consumer goroutine attached by SetOnSessionStart can be torn down from
// the SetOnSessionStop hook, which may run on a different RPC goroutine.
type cancelSet struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newCancelSet() *cancelSet {
	return &cancelSet{cancels: make(map[string]context.CancelFunc)}
}

func (c *cancelSet) set(channelID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[channelID] = cancel
}

func (c *cancelSet) cancel(channelID string) {
	c.mu.Lock()
	cancel, ok := c.cancels[channelID]
	delete(c.cancels, channelID)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}
