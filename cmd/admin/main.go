// Command admin is a small CLI exposing the Admin surface: listing
// queues/workers, rolling back failed jobs, trimming logs, and killing
// workers (spec.md §4.7). Not meant for untrusted channels.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/relayq/relayq/internal/admin"
	"github.com/relayq/relayq/internal/config"
	"github.com/relayq/relayq/internal/keys"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/producer"
	"github.com/relayq/relayq/internal/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [args]

commands:
  queue                          list job-list keys with >=1 job
  process <host>                 list live workers enrolled on host
  kill <host> [procHash]         kill one worker, or every worker on host
  rollback <jobJSON>             re-enqueue a failed log entry as realtime
  logs <success|failed> <start> <end>
  dellogs <success|failed>
  length <queueKey>
  snapshot <host>                protobuf-framed binary snapshot to stdout
  verify-snapshot <path>          decode a snapshot file and print it as JSON`)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

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
	defer log.Close()
	logger.SetDefault(log)

	s, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		os.Exit(1)
	}

	layout := keys.NewLayout(cfg.QueueName)
	a := admin.New(s, layout)
	ctx := context.Background()

	cmd, rest := args[0], args[1:]
	if err := run(ctx, a, layout, s, cmd, rest); err != nil {
		fmt.Fprintf(os.Stderr, "admin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *admin.Admin, layout keys.Layout, s store.Store, cmd string, args []string) error {
	switch cmd {
	case "queue":
		groups, err := a.ShowQueue(ctx)
		if err != nil {
			return err
		}
		return printJSON(groups)

	case "process":
		if len(args) != 1 {
			return fmt.Errorf("process requires <host>")
		}
		procs, err := a.ShowProcess(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(procs)

	case "kill":
		if len(args) < 1 {
			return fmt.Errorf("kill requires <host> [procHash]")
		}
		procHash := ""
		if len(args) > 1 {
			procHash = args[1]
		}
		return a.Kill(ctx, args[0], procHash)

	case "rollback":
		if len(args) != 1 {
			return fmt.Errorf("rollback requires <jobJSON>")
		}
		p := producer.New(s, layout.WithHost(""))
		n, err := a.Rollback(ctx, p, args[0])
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil

	case "logs":
		if len(args) != 3 {
			return fmt.Errorf("logs requires <success|failed> <start> <end>")
		}
		var start, end int64
		if _, err := fmt.Sscanf(args[1], "%d", &start); err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
		if _, err := fmt.Sscanf(args[2], "%d", &end); err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
		page, err := a.ShowLogs(ctx, admin.LogType(args[0]), start, end)
		if err != nil {
			return err
		}
		return printJSON(page)

	case "dellogs":
		if len(args) != 1 {
			return fmt.Errorf("dellogs requires <success|failed>")
		}
		return a.DelLogs(ctx, admin.LogType(args[0]))

	case "length":
		if len(args) != 1 {
			return fmt.Errorf("length requires <queueKey>")
		}
		n, err := a.ShowLength(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil

	case "snapshot":
		if len(args) != 1 {
			return fmt.Errorf("snapshot requires <host>")
		}
		body, err := a.ExportSnapshot(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(body)
		return err

	case "verify-snapshot":
		if len(args) != 1 {
			return fmt.Errorf("verify-snapshot requires <path>")
		}
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot file: %w", err)
		}
		decoded, err := a.ImportSnapshot(body)
		if err != nil {
			return err
		}
		return printJSON(decoded.AsMap())

	default:
		usage()
		os.Exit(1)
		return nil
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
