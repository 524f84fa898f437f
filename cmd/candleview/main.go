package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/candleview/internal/api"
	"github.com/dgnsrekt/candleview/internal/browser"
	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/config"
	"github.com/dgnsrekt/candleview/internal/controller"
	"github.com/dgnsrekt/candleview/internal/journal"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/netutil"
	"github.com/dgnsrekt/candleview/internal/notify"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/scheduler"
	"github.com/dgnsrekt/candleview/internal/session"
	"github.com/dgnsrekt/candleview/internal/snapshot"
	"github.com/dgnsrekt/candleview/internal/timeframe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("candleview config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"snapshot_dir", cfg.SnapshotDir,
		"snapshot_schedule", cfg.SnapshotSchedule,
		"browser_capture", cfg.BrowserCapture,
	)

	theme, err := config.LoadTheme(cfg.ChartThemeFile)
	if err != nil {
		slog.Error("failed to load chart theme", "path", cfg.ChartThemeFile, "error", err)
		os.Exit(1)
	}
	defaultTF, err := timeframe.Parse(cfg.DefaultTimeframe)
	if err != nil {
		slog.Error("invalid default timeframe", "error", err)
		os.Exit(1)
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	catalog := market.Load(loadCtx, &http.Client{Timeout: 10 * time.Second}, cfg.MarketDataURL)
	cancelLoad()
	slog.Info("property catalog loaded", "source", catalog.Source(), "count", len(catalog.List()))

	snapStore, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("failed to create snapshot store", "dir", cfg.SnapshotDir, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	var capturer controller.Capturer
	if cfg.BrowserCapture {
		launcher = browser.NewLauncher(browser.LaunchConfig{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Warn("browser unavailable, PNG snapshots use the built-in rasterizer", "error", err)
		} else {
			capturer = browser.NewCapturer(cfg.CDPURL(), 0)
		}
	}
	stopBrowser := func() {
		if launcher != nil && launcher.Running() {
			launcher.Stop()
		}
	}

	broker := relay.NewBroker()
	var events *journal.Journal
	if cfg.JournalDir != "" {
		events, err = journal.Open(cfg.JournalDir, broker, 0)
		if err != nil {
			slog.Warn("event journal disabled", "dir", cfg.JournalDir, "error", err)
		}
	}
	svc := controller.NewService(controller.Deps{
		Catalog:          catalog,
		Book:             market.NewBook(rand.New(rand.NewSource(time.Now().UnixNano())), time.Now),
		Snapshots:        snapStore,
		Broker:           broker,
		Capturer:         capturer,
		Notifier:         notify.New(cfg.NotifyEndpoint, &http.Client{Timeout: 10 * time.Second}),
		Theme:            theme,
		Viewport:         chart.Viewport{Width: cfg.ChartWidth, Height: cfg.ChartHeight, PixelRatio: cfg.ChartPixelRatio},
		DefaultTimeframe: defaultTF,
		CarouselInterval: cfg.CarouselInterval,
		SnapshotKeep:     cfg.SnapshotKeep,
	})
	slog.Info("galleries started", "count", svc.StartGalleries())

	var sched *scheduler.Scheduler
	if cfg.SnapshotSchedule != "" {
		sched, err = scheduler.New(svc, scheduler.Config{Schedule: cfg.SnapshotSchedule, Format: string(chart.FormatPNG)})
		if err != nil {
			slog.Error("failed to create snapshot scheduler", "error", err)
			svc.Close()
			stopBrowser()
			os.Exit(1)
		}
		sched.Start()
	}

	hub := session.NewHub(svc.LiveConfig)
	h := api.NewServer(svc, api.WithStream(broker), api.WithLive(hub))

	ln, err := netutil.Listen(cfg.BindAddr, netutil.PortCandidates(cfg.BindHost(), cfg.PortCandidates), cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		svc.Close()
		stopBrowser()
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("candleview listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("candleview server failed", "error", err)
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
	case <-serverErr:
		exitCode = 1
	}

	if sched != nil {
		sched.Stop()
	}
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("candleview shutdown failed", "error", err)
	}

	svc.Close()
	if events != nil {
		if err := events.Close(); err != nil {
			slog.Debug("event journal close failed", "error", err)
		}
	}
	stopBrowser()
	os.Exit(exitCode)
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
