package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"dubber/internal/cache"
	"dubber/internal/collab"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/metrics"
	"dubber/internal/middleware"
	"dubber/internal/mixer"
	"dubber/internal/pipeline"
	"dubber/internal/queue"
	"dubber/internal/registry"
	"dubber/internal/separation"
	"dubber/internal/storage"
	"dubber/internal/timeline"
	"dubber/internal/tracing"
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

	if cfg.Auth.Enabled {
		middleware.SetJWTSecret(cfg.Auth.JWTSecret)
		logger.Info("JWT authentication enabled")
	}

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("dubber-api", cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	reg := registry.New()

	var jobCache *cache.Cache
	if cfg.Redis.Enabled {
		jobCache, err = cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer jobCache.Close()
	}

	var stor *storage.Storage
	if cfg.Storage.Enabled {
		stor, err = storage.New(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to initialize storage: %v", err)
		}
	}

	var q *queue.Queue
	if cfg.Queue.Enabled {
		if stor == nil {
			logger.Fatalf("Queued mode requires object storage: enable storage or disable the queue")
		}
		q, err = queue.New(cfg.Queue)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()

		if jobCache == nil {
			logger.Warn("Queue enabled without Redis: status polls will not see worker progress")
		}
	}

	// Jobs run inline when no queue is configured, so the API process carries
	// the full pipeline wiring either way.
	var recorder pipeline.Recorder = reg
	if jobCache != nil {
		recorder = pipeline.NewMirroredRecorder(reg, jobCache, 24*time.Hour, logger)
	}

	ffmpeg := media.NewFFmpeg(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath)
	collabClient := collab.NewClient(cfg.Collab)

	deps := pipeline.Deps{
		Media:       ffmpeg,
		Separator:   separation.New(cfg.Pipeline, logger),
		Compositor:  timeline.New(ffmpeg, cfg.Pipeline, logger),
		Mixer:       mixer.New(ffmpeg, cfg.Pipeline, logger),
		Transcriber: collabClient,
		Translator:  collabClient,
		Synthesizer: collabClient,
	}
	if stor != nil {
		deps.Store = stor
	}
	svc := pipeline.NewService(cfg.Pipeline, deps, recorder, logger)

	api := &API{
		cfg:      cfg,
		log:      logger,
		registry: reg,
		cache:    jobCache,
		storage:  stor,
		queue:    q,
		pipeline: svc,
		prober:   ffmpeg,
		recorder: recorder,
	}

	router := setupRouter(api)

	go func() {
		if err := metrics.Serve(cfg.Server.MetricsPort); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

func setupRouter(api *API) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(api.log))
	router.MaxMultipartMemory = api.cfg.Server.MaxUploadMB << 20

	router.GET("/health", api.healthCheck)

	rl := middleware.NewRateLimiter(api.cfg.Server.RateLimitRPS, api.cfg.Server.RateLimitBurst)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(rl))
	if api.cfg.Auth.Enabled {
		v1.Use(middleware.JWTAuth())
	}
	{
		v1.GET("/options", api.getOptions)
		v1.POST("/dub", api.createDubJob)
		v1.GET("/jobs/:id", api.getJob)
		v1.GET("/jobs/:id/download", api.downloadResult)
	}

	return router
}
