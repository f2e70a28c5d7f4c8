package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/api"
	"github.com/skillproof/capture-engine/internal/config"
	"github.com/skillproof/capture-engine/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	envFile := flag.String("env", "", "path to .env file")
	httpAddr := flag.String("addr", "", "http listen address (overrides HTTP_ADDR)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	mediaDir := flag.String("media-dir", "", "recordings directory (overrides RECORDINGS_DIR)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:       *envFile,
		HTTPAddr:      *httpAddr,
		LogLevel:      *logLevel,
		RecordingsDir: *mediaDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("capture-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.RecordingsDir).Msg("failed to create recordings dir")
	}

	// Media store with optional S3 backup tier
	storeLog := log.With().Str("component", "storage").Logger()
	store, services, err := storage.New(cfg.S3, cfg.RecordingsDir, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media store")
	}
	for _, svc := range services {
		svc.Start()
	}
	defer func() {
		for _, svc := range services {
			svc.Stop()
		}
	}()

	// Background S3 pushes so upload responses never wait on the object store
	var async *storage.AsyncUploader
	if tiered, ok := store.(*storage.TieredStore); ok {
		async = storage.NewAsyncUploader(tiered.S3Store(), cfg.S3.UploadBuffer, log)
		async.Start(cfg.S3.UploadWorkers)
		defer async.Stop()
	}

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, store, async, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("capture-engine stopped")
}
