// Command scheduler runs the cron-based schedule registry alongside a
// producer, firing registered schedules into the realtime lane on their
// configured cadence (CRON_SCHEDULER_ENABLED / CRON_SCHEDULER_INTERVAL).
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
	"github.com/relayq/relayq/internal/producer"
	"github.com/relayq/relayq/internal/scheduler"
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
	schedLog := log.WithComponent(logger.ComponentScheduler)

	if !cfg.CronSchedulerEnabled {
		schedLog.Info("cron scheduler disabled, exiting")
		return
	}

	s, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		schedLog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	layout := keys.NewLayout(cfg.QueueName)
	p := producer.New(s, layout)

	registry := scheduler.NewRegistry()
	registerSchedules(registry)

	keyPrefix := fmt.Sprintf("relayq:%s", cfg.QueueName)
	cronScheduler := scheduler.NewCronScheduler(registry, p, s.Client(), cfg.CronSchedulerInterval, keyPrefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		schedLog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	schedLog.Info("scheduler starting",
		"queue_name", cfg.QueueName,
		"interval", cfg.CronSchedulerInterval,
		"schedules", registry.Count())

	cronScheduler.Start(ctx)

	schedLog.Info("scheduler shut down cleanly")
}

// registerSchedules is where operators wire in their recurring jobs, e.g.:
//
//	registry.MustRegister(&scheduler.Schedule{
//		ID:          "nightly_rollup",
//		Cron:        "0 2 * * *",
//		Cmd:         "rollup_stats",
//		Group:       "main",
//		Description: "compute daily stats rollup",
//		Enabled:     true,
//	})
func registerSchedules(registry *scheduler.Registry) {
}
