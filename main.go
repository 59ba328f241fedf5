package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abishek-baskaran/zvision/internal/analytics"
	"github.com/abishek-baskaran/zvision/internal/camera"
	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/counting"
	"github.com/abishek-baskaran/zvision/internal/detection"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
	"github.com/abishek-baskaran/zvision/internal/state"
	"github.com/abishek-baskaran/zvision/internal/web"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("pipeline failed", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting zvision pipeline")

	store, err := state.NewManager(cfg.DatabasePath(), log)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	bus := service.NewEventBus(64)
	defer bus.Close()

	sink := analytics.NewSink(cfg.Analytics, log)
	sink.SetEventBus(bus)

	detector := detection.NewHTTPDetector(cfg.Detection, log)
	detManager := detection.NewManager(detector, cfg.Detection, log)
	detManager.SetEventBus(bus)
	detManager.SetRecorder(sink)

	cameras := camera.NewManager(cfg, detManager, store, log)
	cameras.SetEventBus(bus)
	cameras.SetRecorder(sink)

	counter := counting.NewService(store, cfg.Detection, log)
	counter.SetEventBus(bus)

	// Released cameras leave no metric or tracking residue behind.
	cameras.AddReleaseHook(sink.Forget)
	cameras.AddReleaseHook(counter.Forget)

	server := web.NewServer(cfg.Server, cameras, detManager, sink, store, counter, log)
	server.SetEventBus(bus)

	// Start order: infrastructure first, camera recovery last so every
	// consumer is ready when workers spin up.
	services := []service.Service{sink, detManager, counter, server, cameras}

	ctx := context.Background()
	started := make([]service.Service, 0, len(services))
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			stopServices(started, log)
			return fmt.Errorf("failed to start %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
		log.Info("service started", "service", svc.Name())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	stopServices(started, log)
	log.Info("shutdown complete")
	return nil
}

// stopServices stops services in reverse start order within the
// shutdown budget
func stopServices(services []service.Service, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil {
			log.Warn("service stop reported error",
				"service", svc.Name(), "error", err)
			continue
		}
		log.Info("service stopped", "service", svc.Name())
	}
}
