package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dubber/internal/cache"
	"dubber/internal/collab"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/metrics"
	"dubber/internal/mixer"
	"dubber/internal/pipeline"
	"dubber/internal/queue"
	"dubber/internal/registry"
	"dubber/internal/separation"
	"dubber/internal/storage"
	"dubber/internal/timeline"
	"dubber/internal/tracing"
	"dubber/pkg/models"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("dubber-worker", cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	// The worker's registry only exists to feed the Redis mirror; the API
	// process answers polls from the mirrored records.
	reg := registry.New()
	var recorder pipeline.Recorder = reg
	if cfg.Redis.Enabled {
		jobCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer jobCache.Close()
		recorder = pipeline.NewMirroredRecorder(reg, jobCache, 24*time.Hour, logger)
	} else {
		logger.Warn("Redis disabled: job progress will not be visible to the API process")
	}

	ffmpeg := media.NewFFmpeg(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath)
	collabClient := collab.NewClient(cfg.Collab)

	svc := pipeline.NewService(cfg.Pipeline, pipeline.Deps{
		Media:       ffmpeg,
		Separator:   separation.New(cfg.Pipeline, logger),
		Compositor:  timeline.New(ffmpeg, cfg.Pipeline, logger),
		Mixer:       mixer.New(ffmpeg, cfg.Pipeline, logger),
		Transcriber: collabClient,
		Translator:  collabClient,
		Synthesizer: collabClient,
		Store:       stor,
	}, recorder, logger)

	go func() {
		if err := metrics.Serve(cfg.Server.MetricsPort); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	jobHandler := func(req *models.DubRequest) error {
		log := logger.WithJobID(req.JobID)
		log.Infof("Processing dubbing job for %s", req.OriginalFilename)

		recorder.Create(req.JobID)
		svc.Run(ctx, req)

		log.Info("Job finished")
		return nil
	}

	logger.Info("Worker started, waiting for jobs...")
	if err := q.ConsumeJobs(ctx, jobHandler); err != nil {
		logger.Fatalf("Failed to consume jobs: %v", err)
	}

	<-ctx.Done()
	logger.Info("Worker stopped")
}
