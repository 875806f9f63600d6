// Command factcheck runs the evidence-gathering pipeline over a topics file,
// renders submission files from the tracked results, and maintains the
// segment index.
//
// Usage:
//
//	factcheck run     [flags]   process every topic and update the tracking store
//	factcheck produce [flags]   write <run_id>-task-1 and <run_id>-task-2
//	factcheck index   [flags]   bulk-load the segment corpus into Elasticsearch
//	factcheck models  [flags]   list the models the generation service offers
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sweetpotato0/ai-factcheck/config"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
)

var version = "dev"

type command func(ctx context.Context, app *app) error

var commands = map[string]command{
	"run":     runCommand,
	"produce": produceCommand,
	"index":   indexCommand,
	"models":  modelsCommand,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		usage()
		os.Exit(2)
	}

	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.Configure(cfg.Log.Format, cfg.Log.Level).With("command", name, "run_id", cfg.RunID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := execute(ctx, cmd, cfg, log); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted")
			os.Exit(130)
		}
		log.Error("command failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func execute(ctx context.Context, cmd command, cfg *config.Config, log *slog.Logger) error {
	a := &app{cfg: cfg, log: log}
	defer a.close()

	// Without a collector, spans go to a per-run file next to the tracking data.
	var traceOut io.Writer
	if cfg.Telemetry.Endpoint == "" && !cfg.Telemetry.Disable {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("traces_%s_%s.jsonl", cfg.TeamID, cfg.RunID))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		a.onClose(f.Close)
		traceOut = f
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "ai-factcheck",
		ServiceVersion: version,
		RunID:          cfg.RunID,
		Endpoint:       cfg.Telemetry.Endpoint,
		Writer:         traceOut,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Disable:        cfg.Telemetry.Disable,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown", slog.Any("err", err))
		}
	}()

	if cfg.MetricsAddr != "" {
		stopServer := startOpsServer(cfg.MetricsAddr, a.health, log)
		defer stopServer()
	}
	return cmd(ctx, a)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: factcheck <run|produce|index|models> [flags]")
}
