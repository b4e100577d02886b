package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "voicescribe/internal/api/http"
	"voicescribe/internal/app"
	"voicescribe/internal/history"
	"voicescribe/internal/metrics"
	"voicescribe/internal/registry"
	"voicescribe/internal/scheduler"
	asrexec "voicescribe/internal/services/asr/exec"
	"voicescribe/internal/services/audio/ffmpeg"
	"voicescribe/internal/services/audio/ffprobe"
	"voicescribe/internal/services/docgen"
	"voicescribe/internal/services/llm/openai"
	"voicescribe/internal/summary"
	"voicescribe/internal/telemetry"
	"voicescribe/internal/usecase"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "voicescribe")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "voicescribe"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("uploadDir", cfg.UploadDir),
		slog.String("transcriptDir", cfg.TranscriptDir),
		slog.Int("workers", cfg.TranscriptionWorkers),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(logger)
	hist := history.NewStore(cfg.HistoryPath, logger)
	if records, err := hist.Load(); err != nil {
		logger.Warn("history load failed", slog.String("error", err.Error()))
	} else if len(records) > 0 {
		reg.MergeHistory(records)
		logger.Info("history restored", slog.Int("records", len(records)))
	}

	prober := ffprobe.New(cfg.FFProbePath)
	normalizer := ffmpeg.New(cfg.FFMPEGPath, cfg.WorkDir, prober)
	runner, err := asrexec.New(cfg.ASRCommand)
	if err != nil {
		logger.Error("asr runner init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	renderer := docgen.NewRenderer(cfg.TranscriptDir, cfg.SummaryDir)
	chat := openai.NewClient(openai.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Models:  cfg.LLMModels,
		Timeout: cfg.LLMTimeout,
	})

	disk := &usecase.DiskPressure{
		Logger:       logger,
		Path:         cfg.UploadDir,
		MinFreeBytes: cfg.MinFreeDiskBytes,
	}
	go disk.Run(rootCtx)

	handler := apihttp.NewServer(
		usecase.UploadFile{
			Registry:     reg,
			Prober:       prober,
			UploadDir:    cfg.UploadDir,
			MaxBytes:     cfg.MaxUploadBytes,
			MinFreeBytes: cfg.MinFreeDiskBytes,
			Logger:       logger,
		},
		apihttp.WithRegistry(reg),
		apihttp.WithHistory(hist),
		apihttp.WithDeleteFile(usecase.DeleteFile{Registry: reg, History: hist, Logger: logger}),
		apihttp.WithListFiles(usecase.ListFiles{Registry: reg}),
		apihttp.WithSummaryGenerator(summary.Generator{
			Registry: reg,
			History:  hist,
			Renderer: renderer,
			Chat:     chat,
			Logger:   logger,
		}),
		apihttp.WithRenderer(renderer),
		apihttp.WithDiskMonitor(disk),
		apihttp.WithWaitTimeout(cfg.TranscribeTimeout),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
		apihttp.WithLogger(logger),
	)

	// The scheduler publishes progress through the server's WebSocket hub.
	sched := scheduler.New(scheduler.Config{
		Registry:   reg,
		History:    hist,
		Runner:     runner,
		Normalizer: normalizer,
		Renderer:   renderer,
		Publisher:  handler,
		Workers:    cfg.TranscriptionWorkers,
		Logger:     logger,
	})
	handler.SetScheduler(sched)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Uploads are large and transcribe calls block for the whole job, so
		// body read and write timeouts stay off.
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	sched.Close()
	handler.Close()

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
