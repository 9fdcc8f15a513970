package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/sharpline/config"
	"github.com/alejandrodnm/sharpline/internal/adapters/httpapi"
	"github.com/alejandrodnm/sharpline/internal/scanner"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one poll cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full per-role tables (default: compact 1-line)")
	batch := flag.Bool("batch", false, "log pending snapshot rows and exit")
	reconcile := flag.Bool("reconcile", false, "reconcile exposure tracker and snapshot against the bet log and exit")
	thresholds := flag.Bool("thresholds", false, "print the required-move table and exit")
	noAutoLog := flag.Bool("no-auto-log", false, "leave accepted rows pending for -batch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *table {
		cfg.Dispatch.Table = true
	}
	if *noAutoLog {
		off := false
		cfg.Scanner.AutoLog = &off
	}
	setupLogger(cfg.Log)

	if *thresholds {
		printThresholds(cfg)
		return
	}

	slog.Info("sharpline starting",
		"config", *configPath,
		"interval", cfg.PollInterval(),
		"once", *once,
		"batch", *batch,
		"reconcile", *reconcile,
		"auto_log", cfg.AutoLog(),
		"data_dir", cfg.Storage.DataDir,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	switch {
	case *reconcile:
		if err := runReconcile(ctx, app); err != nil {
			slog.Error("reconcile failed", "err", err)
			os.Exit(1)
		}
		return
	case *batch:
		if err := runBatch(ctx, app); err != nil {
			slog.Error("batch failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if cfg.HTTP.Addr != "" {
		router := httpapi.NewRouter(httpapi.NewHandler(app.snapshots, app.tracker), app.metrics.Handler())
		router.Method(http.MethodGet, "/ws", app.hub)
		go func() {
			if err := httpapi.Serve(ctx, cfg.HTTP.Addr, router); err != nil {
				slog.Error("http server exited with error", "err", err)
			}
		}()
	}

	scanCfg := scannerConfig(cfg)
	scanCfg.Once = *once

	s := scanner.New(scanCfg, app.deps())
	if err := s.Run(ctx); err != nil {
		slog.Error("scanner exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("sharpline stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
