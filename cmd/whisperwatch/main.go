package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hankw/whisperwatch/internal/config"
	"github.com/hankw/whisperwatch/internal/device"
	"github.com/hankw/whisperwatch/internal/journal"
	"github.com/hankw/whisperwatch/internal/ocr"
	"github.com/hankw/whisperwatch/internal/presence"
	"github.com/hankw/whisperwatch/internal/vision"
	"github.com/hankw/whisperwatch/internal/watcher"
)

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	levels := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	opts := &slog.HandlerOptions{Level: levels[cfg.Level]}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	skipDeviceCheck := flag.Bool("skip-device-check", false, "Skip the startup device connectivity self-test")
	flag.Parse()

	// Bootstrap logger until configuration is loaded
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting whisperwatch")

	// Load configuration
	slog.Info("loading configuration", "config_file", *configFile)
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Reinitialize logger per configuration
	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("watching targets",
		"targets", len(cfg.Targets),
		"poll_interval", cfg.Watcher.PollInterval,
		"send_interval", cfg.Watcher.SendInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Journal: either a real write-behind recorder or a discard stub
	var jnl watcher.Journal = journal.Discard{}
	if cfg.Journal.Database.Enabled {
		slog.Info("opening journal database", "dsn", cfg.Journal.Database.DSN)
		db, err := journal.Open(cfg.Journal.Database)
		if err != nil {
			slog.Error("failed to open journal database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		recorder, err := journal.NewRecorder(cfg.Journal.Recorder, db, logger)
		if err != nil {
			slog.Error("failed to create journal recorder", "error", err)
			os.Exit(1)
		}
		recorder.Start()
		defer recorder.Shutdown()
		jnl = recorder
	} else {
		slog.Info("journal disabled, dispatch records will be discarded")
	}

	// Device controller for chat input and frame capture
	controller, err := device.NewController(ctx, cfg.Device, logger)
	if err != nil {
		slog.Error("failed to initialize device controller", "error", err)
		os.Exit(1)
	}
	if !*skipDeviceCheck {
		if err := controller.TestConnection(ctx); err != nil {
			slog.Error("device connectivity self-test failed", "error", err)
			os.Exit(1)
		}
		slog.Info("device connectivity verified")
	}

	// Presence scraper
	scraper, err := presence.NewChromeScraper(cfg.Scraper, logger)
	if err != nil {
		slog.Error("failed to create presence scraper", "error", err)
		os.Exit(1)
	}

	// OCR verification pipeline
	prep, err := vision.NewPreprocessor(cfg.Vision, logger)
	if err != nil {
		slog.Error("failed to create frame preprocessor", "error", err)
		os.Exit(1)
	}

	recognizer, err := ocr.NewTesseractRecognizer(cfg.OCR.Recognizer)
	if err != nil {
		slog.Error("failed to initialize text recognizer", "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	verifier, err := ocr.NewVerifier(cfg.OCR.Verifier, controller, prep, recognizer, logger)
	if err != nil {
		slog.Error("failed to create verifier", "error", err)
		os.Exit(1)
	}

	// Control loop
	w, err := watcher.New(
		cfg.Watcher,
		cfg.Targets,
		scraper,
		controller,
		verifier,
		watcher.NewLogSink(logger),
		jnl,
		logger,
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	// Run until interrupted
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	slog.Info("whisperwatch is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down gracefully")
	cancel()
	<-done
}
