// Command unit is a single short-lived consumer pass, spawned internally
// by the master (spec.md §6: "unit --type=<delay|realtime> --name=<queueName>").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relayq/relayq/internal/config"
	"github.com/relayq/relayq/internal/dispatcher"
	"github.com/relayq/relayq/internal/idgen"
	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/producer"
	"github.com/relayq/relayq/internal/store"
	"github.com/relayq/relayq/internal/unit"
)

func main() {
	unitType := flag.String("type", "", "unit flavor: delay or realtime")
	queueName := flag.String("name", "", "queue namespace")
	flag.Parse()

	if *unitType != "delay" && *unitType != "realtime" {
		fmt.Fprintln(os.Stderr, "unit: --type must be \"delay\" or \"realtime\"")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *queueName != "" {
		cfg.QueueName = *queueName
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
	unitLog := log.WithComponent(logger.ComponentUnit)

	host, err := os.Hostname()
	if err != nil {
		unitLog.Error("failed to resolve hostname", "error", err)
		os.Exit(1)
	}

	s, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		unitLog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	layout := keys.NewLayout(cfg.QueueName).WithHost(host)
	ctx := context.Background()

	switch *unitType {
	case "delay":
		p := producer.New(s, layout)
		if err := unit.RunDelay(ctx, s, layout, p, cfg.MaxExec, time.Now()); err != nil {
			unitLog.Error("delay unit failed", "error", err)
			os.Exit(1)
		}
	case "realtime":
		unitID := idgen.RandomHash()
		d := defaultDispatcher()
		err := unit.RunRealtime(ctx, s, layout, unitID, d, unit.RealtimeConfig{
			MaxExec: cfg.MaxExec,
			MaxHist: cfg.MaxHist,
		})
		if err != nil {
			unitLog.Error("realtime unit failed", "unit_id", unitID, "error", err)
			os.Exit(1)
		}
	}
}

// defaultDispatcher wires the reference command registry. Real deployments
// replace this with their own Dispatcher implementation (spec.md §4.8
// treats command resolution as wholly external to the scheduler).
func defaultDispatcher() dispatcher.Dispatcher {
	r := dispatcher.NewRegistry()
	r.Register("noop", func(payload map[string]interface{}) (interface{}, error) {
		return true, nil
	})
	return r
}
