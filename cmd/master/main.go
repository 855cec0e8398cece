// Command master is the "go" entrypoint: it acquires the per-host master
// lock and runs the supervision loop until liveness is lost, spawning unit
// processes for delayed and realtime work (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relayq/relayq/internal/config"
	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/master"
	"github.com/relayq/relayq/internal/spawn"
	"github.com/relayq/relayq/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)
	masterLog := log.WithComponent(logger.ComponentMaster)

	host, err := os.Hostname()
	if err != nil {
		masterLog.Error("failed to resolve hostname", "error", err)
		os.Exit(1)
	}

	s, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		masterLog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	spawner, err := spawn.NewExecSpawner()
	if err != nil {
		masterLog.Error("failed to resolve own binary path", "error", err)
		os.Exit(1)
	}

	layout := keys.NewLayout(cfg.QueueName)
	m := master.New(s, layout, host, cfg.QueueName, spawner, master.Config{
		MaxFork: cfg.MaxFork,
		MaxExec: cfg.MaxExec,
		MaxHist: cfg.MaxHist,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		masterLog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	masterLog.Info("master starting",
		"queue_name", cfg.QueueName,
		"host", host,
		"max_fork", cfg.MaxFork,
		"max_exec", cfg.MaxExec,
		"max_hist", cfg.MaxHist)

	if err := m.Run(ctx); err != nil {
		if err == master.ErrAlreadyRunning {
			fmt.Println("Already running!")
			os.Exit(0)
		}
		masterLog.Error("master exited with error", "error", err)
		os.Exit(1)
	}

	masterLog.Info("master shut down cleanly")
}
