package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"voiceover/config"
	"voiceover/handlers"
	"voiceover/media"
	"voiceover/repository"
	"voiceover/services"
	"voiceover/tracing"
	"voiceover/utils"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.Stringer("config", cfg))

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Tracing
	tcfg := tracing.DefaultConfig()
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.JaegerURL = cfg.JaegerURL
	tcfg.Environment = cfg.Environment
	tp, err := tracing.Init(tcfg)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := media.NewMetrics(registry)

	if err := utils.CheckFFmpeg(); err != nil {
		logger.Warn("ffmpeg not available, exports will fail", zap.Error(err))
	}

	// Job store
	var jobs repository.JobRepository = repository.NewMemoryJobRepository()
	if cfg.DatabaseURL != "" {
		db, err := repository.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open job database", zap.Error(err))
		}
		jobs = repository.NewPostgresJobRepository(db)
		logger.Info("using postgres job store")
	}

	// Collaborators
	processor := services.NewTextProcessor(cfg.AudioChunkSize)
	scripts := services.NewScriptService(utils.NewAPIKeyPool(cfg.GeminiAPIKeys), cfg.GeminiModel, processor, logger)

	// without keys, TTS authenticates with GOOGLE_APPLICATION_CREDENTIALS or the metadata server
	var tokenSource oauth2.TokenSource
	if len(cfg.TTSAPIKeys) == 0 {
		tokenSource, err = google.DefaultTokenSource(context.Background(), cloudPlatformScope)
		if err != nil {
			logger.Warn("no TTS API keys and no Google default credentials", zap.Error(err))
			tokenSource = nil
		}
	}
	speech := services.NewSpeechService(utils.NewAPIKeyPool(cfg.TTSAPIKeys), tokenSource, processor, services.SpeechConfig{
		SampleRate:        cfg.AudioSampleRate,
		MaxConcurrent:     cfg.MaxConcurrentTTSRequests,
		RequestsPerSecond: cfg.TTSRequestsPerSecond,
		RetryDelay:        time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, logger)

	// Export pipeline
	platform := services.NewCapturePlatform(cfg.TempDir, logger)
	composer := services.NewComposerService(platform, jobs, metrics, services.ComposerConfig{
		TempDir:         cfg.TempDir,
		MimeType:        cfg.RecordingMime,
		LoadTimeout:     cfg.LoadTimeout,
		FinalizeGrace:   cfg.FinalizeGrace,
		FinalizeTimeout: cfg.FinalizeTimeout,
	}, logger)

	studio := handlers.NewStudioHandler(handlers.StudioConfig{
		TempDir:         cfg.TempDir,
		MaxTextLength:   cfg.MaxTextLength,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
		OutputRetention: cfg.OutputRetention,
	}, scripts, speech, composer, processor, logger)
	preview := handlers.NewPreviewHandler(cfg.DriftThreshold, cfg.AllowedOrigins, metrics, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		RateLimitRPS:   cfg.HTTPRequestsPerSecond,
		RateLimitBurst: cfg.HTTPBurst,
		Gatherer:       registry,
	}, studio, preview, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
		_ = srv.Close()
	}
	// exports in flight finalize what they recorded
	if err := composer.Shutdown(shutdownCtx); err != nil {
		logger.Error("exports did not settle", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", zap.Error(err))
	}

	logger.Info("server stopped")
}
