package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dubber/internal/cache"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/metrics"
	"dubber/internal/pipeline"
	"dubber/internal/queue"
	"dubber/internal/registry"
	"dubber/internal/storage"
	"dubber/pkg/models"
)

// mediaProber verifies an upload really is a video before a job exists.
type mediaProber interface {
	ProbeMedia(ctx context.Context, path string) (*media.Info, error)
}

type API struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *registry.Registry
	cache    *cache.Cache
	storage  *storage.Storage
	queue    *queue.Queue
	pipeline *pipeline.Service
	prober   mediaProber
	recorder pipeline.Recorder
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := gin.H{}

	if api.cache != nil {
		if err := api.cache.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		components["redis"] = "ok"
	}

	if api.queue != nil {
		depth, err := api.queue.GetQueueDepth()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		components["queue_depth"] = depth
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"components": components,
	})
}

// Options endpoint lists what a dubbing request may ask for
func (api *API) getOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages":         models.SupportedLanguages,
		"voices":            models.AvailableVoices,
		"separation_models": models.SeparationModels,
		"processing_modes":  models.ProcessingModes,
		"defaults": gin.H{
			"separation_model": api.cfg.Pipeline.DefaultModel,
			"mode":             api.cfg.Pipeline.DefaultMode,
			"vocal_balance":    api.cfg.Pipeline.DefaultBalance,
		},
	})
}

// Create dub job endpoint
func (api *API) createDubJob(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	if !models.IsAllowedVideoFilename(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported video format, expected .mp4 or .mov"})
		return
	}

	req, err := api.buildRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.OriginalFilename = filepath.Base(file.Filename)

	// The upload lands inside the job's work directory so the pipeline's
	// cleanup removes it with everything else.
	jobDir := filepath.Join(api.cfg.Pipeline.WorkDir, req.JobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create work directory"})
		return
	}
	localPath := filepath.Join(jobDir, req.OriginalFilename)
	if err := c.SaveUploadedFile(file, localPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	if api.prober != nil {
		info, err := api.prober.ProbeMedia(c.Request.Context(), localPath)
		if err != nil || !info.HasVideo {
			os.RemoveAll(jobDir)
			c.JSON(http.StatusBadRequest, gin.H{"error": "File does not contain a video stream"})
			return
		}
	}

	metrics.VideoUploadSizeBytes.Observe(float64(file.Size))

	if api.queue != nil {
		objectName := fmt.Sprintf("uploads/%s/%s", req.JobID, req.OriginalFilename)
		if err := api.storage.UploadFile(c.Request.Context(), objectName, localPath); err != nil {
			os.RemoveAll(jobDir)
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to stage upload: %v", err)})
			return
		}
		os.RemoveAll(jobDir)
		req.SourceObject = objectName

		api.recorder.Create(req.JobID)
		if err := api.queue.PublishJob(c.Request.Context(), req); err != nil {
			api.recorder.Fail(req.JobID, "failed to queue job: "+err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue job: %v", err)})
			return
		}
	} else {
		req.VideoPath = localPath
		api.recorder.Create(req.JobID)
		go api.pipeline.Run(context.Background(), req)
	}

	metrics.JobsCreatedTotal.Inc()

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     req.JobID,
		"status_url": "/api/v1/jobs/" + req.JobID,
	})
}

// buildRequest validates the form fields and fills in defaults.
func (api *API) buildRequest(c *gin.Context) (*models.DubRequest, error) {
	targetLanguage := c.PostForm("target_language")
	if !models.IsSupportedLanguage(targetLanguage) {
		return nil, fmt.Errorf("unsupported target language: %q", targetLanguage)
	}

	voice := c.PostForm("voice")
	if voice == "" {
		voice = models.DefaultVoice(targetLanguage)
	} else if !models.IsKnownVoice(voice) {
		return nil, fmt.Errorf("unknown voice: %q", voice)
	}

	model := c.PostForm("separation_model")
	if model == "" {
		model = api.cfg.Pipeline.DefaultModel
	} else if !models.IsSeparationModel(model) {
		return nil, fmt.Errorf("unknown separation model: %q", model)
	}

	mode := c.PostForm("mode")
	if mode == "" {
		mode = api.cfg.Pipeline.DefaultMode
	} else if !models.IsProcessingMode(mode) {
		return nil, fmt.Errorf("unknown processing mode: %q", mode)
	}

	balance := api.cfg.Pipeline.DefaultBalance
	if raw := c.PostForm("vocal_balance"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return nil, fmt.Errorf("vocal_balance must be a number between 0 and 1")
		}
		balance = parsed
	}

	return &models.DubRequest{
		JobID:           uuid.New().String(),
		TargetLanguage:  targetLanguage,
		Voice:           voice,
		SeparationModel: model,
		Mode:            mode,
		VocalBalance:    balance,
	}, nil
}

// Get job endpoint
func (api *API) getJob(c *gin.Context) {
	record, ok := api.lookupJob(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// lookupJob consults the local registry first, then the Redis mirror for
// jobs owned by a worker process. The freshest record wins.
func (api *API) lookupJob(ctx context.Context, jobID string) (models.JobRecord, bool) {
	record, ok := api.registry.Get(jobID)

	if api.cache != nil {
		cached, err := api.cache.GetJob(ctx, jobID)
		if err != nil {
			api.log.Warnf("Job cache lookup failed for %s: %v", jobID, err)
		} else if cached != nil {
			if !ok || cached.UpdatedAt.After(record.UpdatedAt) {
				return *cached, true
			}
		}
	}

	return record, ok
}

// Download result endpoint
func (api *API) downloadResult(c *gin.Context) {
	record, ok := api.lookupJob(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	if record.State != models.JobStateCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job has not completed",
			"state": record.State,
		})
		return
	}

	if _, err := os.Stat(record.ResultLocation); err == nil {
		c.FileAttachment(record.ResultLocation, filepath.Base(record.ResultLocation))
		return
	}

	if api.storage != nil {
		url, err := api.storage.PresignedURL(c.Request.Context(), record.ResultLocation, 15*time.Minute)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to generate download URL: %v", err)})
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Result is no longer available"})
}
