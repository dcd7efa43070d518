package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dubber/internal/collab"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/metrics"
	"dubber/internal/separation"
	"dubber/internal/tracing"
	"dubber/pkg/models"
)

// MediaProcessor covers the ffmpeg operations the pipeline drives.
type MediaProcessor interface {
	ProbeMedia(ctx context.Context, path string) (*media.Info, error)
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
	ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// SeparationGate runs source separation and judges its usability.
type SeparationGate interface {
	Separate(ctx context.Context, audioPath, model, outputDir string) (*separation.StemSet, error)
	ValidateResult(set *separation.StemSet) bool
	BackgroundMusic(set *separation.StemSet) (string, bool)
}

// Compositor renders a timeline of speech clips into one continuous track.
type Compositor interface {
	Render(ctx context.Context, tl models.Timeline, outputPath string) error
	RenderSequential(ctx context.Context, tl models.Timeline, outputPath string) error
}

// TrackMixer blends vocals with background music.
type TrackMixer interface {
	Mix(ctx context.Context, vocalsPath, musicPath, outputPath string, balance float64) error
}

// ArtifactStore moves job inputs and outputs to and from object storage.
type ArtifactStore interface {
	UploadFile(ctx context.Context, objectName, filePath string) error
	DownloadFile(ctx context.Context, objectName, filePath string) error
}

// Recorder receives job status transitions. Implementations must serialize
// access per job id; the in-memory registry does, and the mirror adds a
// Redis copy for split deployments.
type Recorder interface {
	Create(id string) models.JobRecord
	SetProgress(id string, progress int, message string)
	Complete(id string, resultLocation string)
	Fail(id string, message string)
}

// Deps bundles the collaborating components of the pipeline.
type Deps struct {
	Media       MediaProcessor
	Separator   SeparationGate
	Compositor  Compositor
	Mixer       TrackMixer
	Transcriber collab.Transcriber
	Translator  collab.Translator
	Synthesizer collab.Synthesizer
	Store       ArtifactStore // optional
}

// Service executes dubbing jobs as a linear stage machine with per-stage
// fallbacks. One Run call owns one job from extraction to final remux.
type Service struct {
	cfg  config.PipelineConfig
	deps Deps
	rec  Recorder
	log  *logging.Logger
}

// NewService creates a pipeline service.
func NewService(cfg config.PipelineConfig, deps Deps, rec Recorder, log *logging.Logger) *Service {
	return &Service{cfg: cfg, deps: deps, rec: rec, log: log}
}

// Run processes one job to a terminal state. It never returns an error and
// never panics out of its goroutine: every fatal condition is recorded as a
// failed status readable via polling. The job-scoped temp directory is
// released on success and failure alike.
func (s *Service) Run(ctx context.Context, req *models.DubRequest) {
	log := s.log.WithJobID(req.JobID)
	started := time.Now()

	span, ctx := tracing.StartSpan(ctx, "pipeline.run")
	defer span.Finish()
	tracing.SetTag(span, "job_id", req.JobID)
	tracing.SetTag(span, "mode", req.Mode)

	metrics.JobsInProgress.Inc()
	defer metrics.JobsInProgress.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Pipeline panicked: %v", r)
			s.fail(req.JobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	tempDir := filepath.Join(s.cfg.WorkDir, req.JobID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		s.fail(req.JobID, "failed to create work directory: "+err.Error())
		return
	}
	defer os.RemoveAll(tempDir)

	result, err := s.execute(ctx, req, tempDir, log)
	if err != nil {
		log.ErrorWithErr("Job failed", err)
		tracing.LogError(span, err)
		s.fail(req.JobID, err.Error())
		return
	}

	s.rec.Complete(req.JobID, result)
	metrics.JobsCompletedTotal.WithLabelValues(models.JobStateCompleted).Inc()
	metrics.JobDuration.Observe(time.Since(started).Seconds())
	log.Infof("Job completed in %s", time.Since(started))
}

func (s *Service) fail(id, message string) {
	s.rec.Fail(id, message)
	metrics.JobsCompletedTotal.WithLabelValues(models.JobStateFailed).Inc()
}

// execute runs the stage machine. Returning an error fails the job; stage
// fallbacks are resolved inside and never escape.
func (s *Service) execute(ctx context.Context, req *models.DubRequest, tempDir string, log *logging.Logger) (string, error) {
	videoPath, err := s.resolveSource(ctx, req, tempDir)
	if err != nil {
		return "", err
	}

	info, err := s.deps.Media.ProbeMedia(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("failed to probe video: %w", err)
	}
	if !info.HasVideo {
		return "", errors.New("source file contains no video stream")
	}
	trackFloor := s.trackFloor(info.Duration)

	// Extract
	s.rec.SetProgress(req.JobID, 5, "Extracting audio from video...")
	audioPath := filepath.Join(tempDir, "extracted_audio.wav")
	if err := s.stage(ctx, "extract", func(ctx context.Context) error {
		return s.deps.Media.ExtractAudio(ctx, videoPath, audioPath)
	}); err != nil {
		return "", fmt.Errorf("audio extraction failed: %w", err)
	}

	// Separate (preserve_music only); any failure downgrades this job to the
	// replace-all flow without touching the configured mode.
	vocalsSource, backgroundPath, err := s.separateStage(ctx, req, audioPath, tempDir, log)
	if err != nil {
		return "", err
	}

	// Transcribe
	s.rec.SetProgress(req.JobID, 30, "Transcribing vocal track...")
	var transcript []models.Segment
	if err := s.stage(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		transcript, err = s.deps.Transcriber.Transcribe(ctx, vocalsSource)
		return err
	}); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	log.Infof("Transcription completed: %d segments", len(transcript))

	// Translate
	s.rec.SetProgress(req.JobID, 50, "Translating text...")
	var translated []models.Segment
	if err := s.stage(ctx, "translate", func(ctx context.Context) error {
		var err error
		translated, err = s.deps.Translator.Translate(ctx, transcript, req.TargetLanguage)
		return err
	}); err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	// Synthesize
	s.rec.SetProgress(req.JobID, 70, "Generating speech...")
	tl, err := s.synthesizeStage(ctx, req, translated, info.Duration, tempDir, log)
	if err != nil {
		return "", err
	}

	// Combine
	s.rec.SetProgress(req.JobID, 85, "Combining audio segments...")
	newVocalsPath := filepath.Join(tempDir, "new_vocals.wav")
	if err := s.combineStage(ctx, req.JobID, tl, newVocalsPath, trackFloor, log); err != nil {
		return "", err
	}

	// Mix
	s.rec.SetProgress(req.JobID, 90, "Finalizing audio track...")
	finalAudioPath := s.mixStage(ctx, req, newVocalsPath, backgroundPath, tempDir, trackFloor, log)

	if err := validateArtifact(finalAudioPath, trackFloor); err != nil {
		return "", err
	}

	// Replace
	s.rec.SetProgress(req.JobID, 95, "Creating final video...")
	outputVideoPath := filepath.Join(tempDir, "output_video.mp4")
	if err := s.stage(ctx, "replace", func(ctx context.Context) error {
		return s.deps.Media.ReplaceAudio(ctx, videoPath, finalAudioPath, outputVideoPath)
	}); err != nil {
		return "", fmt.Errorf("video audio replacement failed: %w", err)
	}
	if err := validateArtifact(outputVideoPath, trackFloor); err != nil {
		return "", err
	}

	// Finalize
	return s.publish(ctx, req, outputVideoPath)
}

// resolveSource returns a local path for the job's source video, downloading
// it from object storage in the queued deployment.
func (s *Service) resolveSource(ctx context.Context, req *models.DubRequest, tempDir string) (string, error) {
	if req.VideoPath != "" {
		return req.VideoPath, nil
	}
	if req.SourceObject == "" {
		return "", errors.New("request carries neither a video path nor a source object")
	}
	if s.deps.Store == nil {
		return "", errors.New("source object given but no artifact store configured")
	}

	videoPath := filepath.Join(tempDir, "source"+filepath.Ext(req.OriginalFilename))
	if err := s.deps.Store.DownloadFile(ctx, req.SourceObject, videoPath); err != nil {
		return "", fmt.Errorf("failed to fetch source video: %w", err)
	}
	return videoPath, nil
}

// separateStage returns the vocals source and background track for the job.
// In replace_all mode, and whenever separation fails or its result does not
// validate, the raw extracted audio stands in for vocals with no background.
func (s *Service) separateStage(ctx context.Context, req *models.DubRequest, audioPath, tempDir string, log *logging.Logger) (string, string, error) {
	if req.Mode != models.ModePreserveMusic {
		log.Info("Processing mode is 'replace_all' - skipping audio separation")
		s.rec.SetProgress(req.JobID, 15, "Skipping audio separation (replace all mode)...")
		return audioPath, "", nil
	}

	s.rec.SetProgress(req.JobID, 15, "Separating vocals from background music...")
	separationDir := filepath.Join(tempDir, "separated")

	var set *separation.StemSet
	err := s.stage(ctx, "separate", func(ctx context.Context) error {
		var err error
		set, err = s.deps.Separator.Separate(ctx, audioPath, req.SeparationModel, separationDir)
		return err
	})

	var gateErr *separation.QualityGateError
	if errors.As(err, &gateErr) {
		// Fallback disabled: the quality gate is a hard failure.
		return "", "", gateErr
	}

	if err == nil && set != nil {
		metrics.SeparationQuality.Observe(set.QualityScore)
	}

	if err != nil || !s.deps.Separator.ValidateResult(set) {
		if err == nil {
			err = errors.New("separation validation failed - poor quality results")
		}
		log.LogFallback(req.JobID, "separate", err)
		metrics.StageFallbacksTotal.WithLabelValues("separate").Inc()
		return audioPath, "", nil
	}

	vocalsPath, ok := set.Vocals()
	background, okBg := s.deps.Separator.BackgroundMusic(set)
	if !ok || !okBg {
		log.LogFallback(req.JobID, "separate", errors.New("missing vocals or background track in separation result"))
		metrics.StageFallbacksTotal.WithLabelValues("separate").Inc()
		return audioPath, "", nil
	}

	return vocalsPath, background, nil
}

// synthesizeStage renders one clip per translated segment. Segments the
// synthesizer produces no clip for are dropped from the timeline.
func (s *Service) synthesizeStage(ctx context.Context, req *models.DubRequest, translated []models.Segment, totalDuration float64, tempDir string, log *logging.Logger) (models.Timeline, error) {
	tl := models.Timeline{TotalDuration: totalDuration}

	speechDir := filepath.Join(tempDir, "speech_segments")
	if err := os.MkdirAll(speechDir, 0755); err != nil {
		return tl, fmt.Errorf("failed to create speech directory: %w", err)
	}

	err := s.stage(ctx, "synthesize", func(ctx context.Context) error {
		for i, seg := range translated {
			clipPath := filepath.Join(speechDir, fmt.Sprintf("segment_%03d.wav", i))
			written, err := s.deps.Synthesizer.Synthesize(ctx, seg.Text, req.TargetLanguage, req.Voice, clipPath)
			if err != nil {
				return err
			}
			if written == "" {
				log.Warnf("No clip produced for segment %d, dropping it", i)
				continue
			}
			seg.AudioPath = written
			tl.Segments = append(tl.Segments, seg)
		}
		return nil
	})
	if err != nil {
		return tl, fmt.Errorf("speech synthesis failed: %w", err)
	}

	log.Infof("Generated %d speech clips", len(tl.Segments))
	return tl, nil
}

// combineStage renders the timeline, retrying once with the sequential
// fallback before declaring the combine unrecoverable.
func (s *Service) combineStage(ctx context.Context, jobID string, tl models.Timeline, outputPath string, minBytes int64, log *logging.Logger) error {
	err := s.stage(ctx, "combine", func(ctx context.Context) error {
		if err := s.deps.Compositor.Render(ctx, tl, outputPath); err != nil {
			return err
		}
		return validateArtifact(outputPath, minBytes)
	})
	if err == nil {
		return nil
	}

	log.LogFallback(jobID, "combine", err)
	metrics.StageFallbacksTotal.WithLabelValues("combine").Inc()

	if fbErr := s.deps.Compositor.RenderSequential(ctx, tl, outputPath); fbErr != nil {
		return fmt.Errorf("both primary and fallback audio combination methods failed: %w", fbErr)
	}
	if fbErr := validateArtifact(outputPath, minBytes); fbErr != nil {
		return fmt.Errorf("both primary and fallback audio combination methods failed: %w", fbErr)
	}
	return nil
}

// mixStage blends new vocals with the background track when one exists. Mix
// failure never fails the job; the vocals-only track is the final track.
func (s *Service) mixStage(ctx context.Context, req *models.DubRequest, vocalsPath, backgroundPath, tempDir string, minBytes int64, log *logging.Logger) string {
	if backgroundPath == "" || req.Mode != models.ModePreserveMusic {
		log.Info("Using new vocals only (no background music or replace_all mode)")
		return vocalsPath
	}

	mixedPath := filepath.Join(tempDir, "final_mixed_audio.wav")
	err := s.stage(ctx, "mix", func(ctx context.Context) error {
		if err := s.deps.Mixer.Mix(ctx, vocalsPath, backgroundPath, mixedPath, req.VocalBalance); err != nil {
			return err
		}
		return validateArtifact(mixedPath, minBytes)
	})
	if err != nil {
		log.LogFallback(req.JobID, "mix", err)
		metrics.StageFallbacksTotal.WithLabelValues("mix").Inc()
		return vocalsPath
	}
	return mixedPath
}

// publish moves the finished video out of the job temp dir: to object
// storage when configured, to the local output directory otherwise.
func (s *Service) publish(ctx context.Context, req *models.DubRequest, outputVideoPath string) (string, error) {
	outputName := "dubbed_" + filepath.Base(req.OriginalFilename)
	if req.OriginalFilename == "" {
		outputName = "dubbed_output.mp4"
	}

	if s.deps.Store != nil {
		objectName := fmt.Sprintf("outputs/%s/%s", req.JobID, outputName)
		if err := s.deps.Store.UploadFile(ctx, objectName, outputVideoPath); err != nil {
			return "", fmt.Errorf("failed to upload result: %w", err)
		}
		return objectName, nil
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	resultPath := filepath.Join(s.cfg.OutputDir, req.JobID+"_"+outputName)
	if err := copyFile(outputVideoPath, resultPath); err != nil {
		return "", fmt.Errorf("failed to save result: %w", err)
	}
	return resultPath, nil
}

// stage runs one pipeline stage under a tracing span and duration metric.
func (s *Service) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	span, ctx := tracing.StartSpan(ctx, "pipeline."+name)
	defer span.Finish()

	started := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())

	if err != nil {
		tracing.LogError(span, err)
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
