package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldscope/fieldscope/internal/catalog"
	"github.com/fieldscope/fieldscope/internal/discovery"
	"github.com/fieldscope/fieldscope/internal/engine"
	"github.com/fieldscope/fieldscope/internal/export"
	"github.com/fieldscope/fieldscope/internal/httpserver"
	"github.com/fieldscope/fieldscope/internal/mqtt"
)

// runServer wires the broker clients, the state engine, and the HTTP API,
// then runs the poll loop until a signal arrives.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	cat := catalog.NewBuiltin()
	if cfg.CatalogPath != "" {
		if err := cat.LoadFile(cfg.CatalogPath); err != nil {
			return fmt.Errorf("failed to load catalog overlay: %w", err)
		}
	}

	tracker := discovery.NewTracker()

	supervisor := mqtt.NewSupervisorClient(mqtt.Config{
		Host:     cfg.BrokerHost,
		Port:     cfg.BrokerPort,
		Username: cfg.SupervisorUsername,
		Password: cfg.SupervisorPassword,
	}, cfg.TopicPrefix, tracker)

	// The measurement client and the engine reference each other: the engine
	// drives subscriptions through the client, the client feeds payloads
	// back. The engine is built first with a late-bound transport.
	var measurement *mqtt.Client
	eng := engine.New(engine.Config{
		Catalog:       cat,
		TopicPrefix:   cfg.TopicPrefix,
		SampleHz:      cfg.SampleHz,
		WindowSeconds: cfg.WindowSeconds,
		Transport: transportFunc{
			subscribe:   func(topic string) error { return measurement.Subscribe(topic) },
			unsubscribe: func(topic string) error { return measurement.Unsubscribe(topic) },
		},
	})
	measurement = mqtt.NewMeasurementClient(mqtt.Config{
		Host:     cfg.BrokerHost,
		Port:     cfg.BrokerPort,
		Username: cfg.MeasurementUsername,
		Password: cfg.MeasurementPassword,
	}, cfg.TopicPrefix, eng)

	if err := supervisor.Connect(); err != nil {
		return fmt.Errorf("failed to connect supervisor client: %w", err)
	}
	defer supervisor.Disconnect()

	if err := measurement.Connect(); err != nil {
		return fmt.Errorf("failed to connect measurement client: %w", err)
	}
	defer measurement.Disconnect()

	// Open the series archive when configured.
	var archiver *export.Archiver
	if cfg.ArchivePath != "" {
		var err error
		archiver, err = export.NewArchiver(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open series archive: %w", err)
		}
		defer archiver.Close()
	}

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		srvConf := httpserver.ServerConfig{
			Sensors:    tracker,
			StaleAfter: cfg.SensorStaleAfter,
		}
		if archiver != nil {
			srvConf.Archiver = archiver
		}
		apiServer := httpserver.NewServer(cfg.APIAddr, eng, srvConf)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Poll loop: auto-stop checks plus stale sensor eviction.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if eng.Tick() {
					log.Printf("server: measurement auto-stopped at %.2fs", eng.Elapsed())
				}
				if _, evicted := tracker.Active(now, cfg.SensorStaleAfter); len(evicted) > 0 {
					log.Printf("server: dropping stale sensor(s): %v", evicted)
					eng.DropSensors(evicted)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	signal.Stop(sigCh)

	return nil
}

// transportFunc adapts two closures to the engine's transport contract so
// the measurement client can be constructed after the engine.
type transportFunc struct {
	subscribe   func(topic string) error
	unsubscribe func(topic string) error
}

func (t transportFunc) Subscribe(topic string) error   { return t.subscribe(topic) }
func (t transportFunc) Unsubscribe(topic string) error { return t.unsubscribe(topic) }

func printStartupBanner(cfg appConfig) {
	fmt.Printf("Fieldscope %s\n", version)
	fmt.Printf("  Broker:       tcp://%s:%d (prefix %s)\n", cfg.BrokerHost, cfg.BrokerPort, cfg.TopicPrefix)
	fmt.Printf("  Sampling:     %.1f Hz over a %.0fs window\n", cfg.SampleHz, cfg.WindowSeconds)
	if cfg.APIEnabled {
		fmt.Printf("  HTTP API:     http://%s\n", cfg.APIAddr)
	}
	if cfg.ArchivePath != "" {
		fmt.Printf("  Archive:      %s\n", cfg.ArchivePath)
	}
	if cfg.ConfigPath != "" {
		fmt.Printf("  Config:       %s\n", cfg.ConfigPath)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "fieldscope")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "fieldscope.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}
