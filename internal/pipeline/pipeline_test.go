package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/separation"
	"dubber/pkg/models"
)

// --- fakes ---

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, 256), 0644))
}

type fakeMedia struct {
	t          *testing.T
	extractErr error
	probeErr   error
	replaceErr error
	noVideo    bool
	duration   float64
}

func (f *fakeMedia) ProbeMedia(ctx context.Context, path string) (*media.Info, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	duration := f.duration
	if duration == 0 {
		duration = 10
	}
	return &media.Info{Duration: duration, HasVideo: !f.noVideo, HasAudio: true}, nil
}

func (f *fakeMedia) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	writeArtifact(f.t, outputPath)
	return nil
}

func (f *fakeMedia) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	writeArtifact(f.t, outputPath)
	return nil
}

type fakeSeparator struct {
	t            *testing.T
	separateErr  error
	invalid      bool
	noBackground bool
}

func (f *fakeSeparator) Separate(ctx context.Context, audioPath, model, outputDir string) (*separation.StemSet, error) {
	if f.separateErr != nil {
		return nil, f.separateErr
	}
	vocals := filepath.Join(outputDir, "vocals.wav")
	accomp := filepath.Join(outputDir, "accompaniment.wav")
	writeArtifact(f.t, vocals)
	writeArtifact(f.t, accomp)
	return &separation.StemSet{
		Stems: map[string]string{
			separation.StemVocals:        vocals,
			separation.StemAccompaniment: accomp,
		},
		QualityScore: 0.8,
	}, nil
}

func (f *fakeSeparator) ValidateResult(set *separation.StemSet) bool {
	return set != nil && !f.invalid
}

func (f *fakeSeparator) BackgroundMusic(set *separation.StemSet) (string, bool) {
	if f.noBackground {
		return "", false
	}
	return set.Path(separation.StemAccompaniment)
}

type fakeCompositor struct {
	t          *testing.T
	renderErr  error
	seqErr     error
	seqCalled  bool
	renderSize int
	lastRender models.Timeline
}

func (f *fakeCompositor) Render(ctx context.Context, tl models.Timeline, outputPath string) error {
	f.lastRender = tl
	if f.renderErr != nil {
		return f.renderErr
	}
	size := f.renderSize
	if size == 0 {
		size = 256
	}
	require.NoError(f.t, os.WriteFile(outputPath, make([]byte, size), 0644))
	return nil
}

func (f *fakeCompositor) RenderSequential(ctx context.Context, tl models.Timeline, outputPath string) error {
	f.seqCalled = true
	if f.seqErr != nil {
		return f.seqErr
	}
	writeArtifact(f.t, outputPath)
	return nil
}

type fakeMixer struct {
	t      *testing.T
	mixErr error
	called bool
}

func (f *fakeMixer) Mix(ctx context.Context, vocalsPath, musicPath, outputPath string, balance float64) error {
	f.called = true
	if f.mixErr != nil {
		return f.mixErr
	}
	writeArtifact(f.t, outputPath)
	return nil
}

type fakeCollab struct {
	t             *testing.T
	transcribeErr error
	translateErr  error
	synthErr      error
	dropAll       bool
}

func (f *fakeCollab) Transcribe(ctx context.Context, audioPath string) ([]models.Segment, error) {
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return []models.Segment{
		{StartTime: 0, EndTime: 2, Text: "hello"},
		{StartTime: 3, EndTime: 5, Text: "world"},
	}, nil
}

func (f *fakeCollab) Translate(ctx context.Context, segments []models.Segment, targetLanguage string) ([]models.Segment, error) {
	if f.translateErr != nil {
		return nil, f.translateErr
	}
	return segments, nil
}

func (f *fakeCollab) Synthesize(ctx context.Context, text, language, voice, outputPath string) (string, error) {
	if f.synthErr != nil {
		return "", f.synthErr
	}
	if f.dropAll {
		return "", nil
	}
	writeArtifact(f.t, outputPath)
	return outputPath, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	progress []int
	state    string
	message  string
	result   string
}

func (r *fakeRecorder) Create(id string) models.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = models.JobStateStarted
	return models.JobRecord{ID: id}
}

func (r *fakeRecorder) SetProgress(id string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = models.JobStateProcessing
	r.progress = append(r.progress, progress)
}

func (r *fakeRecorder) Complete(id string, resultLocation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = models.JobStateCompleted
	r.result = resultLocation
}

func (r *fakeRecorder) Fail(id string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = models.JobStateFailed
	r.message = message
}

// --- harness ---

type harness struct {
	svc        *Service
	rec        *fakeRecorder
	media      *fakeMedia
	separator  *fakeSeparator
	compositor *fakeCompositor
	mixer      *fakeMixer
	collab     *fakeCollab
	cfg        config.PipelineConfig
}

func newHarness(t *testing.T, opts ...func(*config.PipelineConfig)) *harness {
	t.Helper()
	log, err := logging.NewLogger(logging.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	cfg := config.PipelineConfig{
		WorkDir:          filepath.Join(t.TempDir(), "work"),
		OutputDir:        filepath.Join(t.TempDir(), "out"),
		QualityThreshold: 0.3,
		EnableFallback:   true,
		MinStemBytes:     10,
		MinTrackBytes:    10,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		rec:        &fakeRecorder{},
		media:      &fakeMedia{t: t},
		separator:  &fakeSeparator{t: t},
		compositor: &fakeCompositor{t: t},
		mixer:      &fakeMixer{t: t},
		collab:     &fakeCollab{t: t},
		cfg:        cfg,
	}
	h.svc = NewService(cfg, Deps{
		Media:       h.media,
		Separator:   h.separator,
		Compositor:  h.compositor,
		Mixer:       h.mixer,
		Transcriber: h.collab,
		Translator:  h.collab,
		Synthesizer: h.collab,
	}, h.rec, log)
	return h
}

func testRequest(t *testing.T) *models.DubRequest {
	videoPath := filepath.Join(t.TempDir(), "input.mp4")
	require.NoError(t, os.WriteFile(videoPath, make([]byte, 256), 0644))
	return &models.DubRequest{
		JobID:            "job-1",
		VideoPath:        videoPath,
		OriginalFilename: "input.mp4",
		TargetLanguage:   "pt-BR",
		Voice:            "pt-BR-Chirp3-HD-Zephyr",
		SeparationModel:  "htdemucs",
		Mode:             models.ModePreserveMusic,
		VocalBalance:     0.8,
	}
}

// --- tests ---

func TestRunCompletesFullFlow(t *testing.T) {
	h := newHarness(t)
	req := testRequest(t)
	h.rec.Create(req.JobID)

	h.svc.Run(context.Background(), req)

	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.Equal(t, []int{5, 15, 30, 50, 70, 85, 90, 95}, h.rec.progress)
	assert.True(t, h.mixer.called)

	// Result landed in the output directory
	_, err := os.Stat(h.rec.result)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(h.rec.result), "dubbed_input.mp4")

	// Job work directory was cleaned up
	_, err = os.Stat(filepath.Join(h.cfg.WorkDir, req.JobID))
	assert.True(t, os.IsNotExist(err))
}

func TestRunReplaceAllSkipsSeparation(t *testing.T) {
	h := newHarness(t)
	// Any separation attempt would fail loudly
	h.separator.separateErr = errors.New("should not run")

	req := testRequest(t)
	req.Mode = models.ModeReplaceAll
	h.svc.Run(context.Background(), req)

	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	// No background track, so the mixer never runs
	assert.False(t, h.mixer.called)
}

func TestRunQualityGateFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.separator.separateErr = &separation.QualityGateError{Score: 0.1, Threshold: 0.3}

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateFailed, h.rec.state)
	assert.Contains(t, h.rec.message, "quality")
}

func TestRunSeparationFailureFallsBackToFullAudio(t *testing.T) {
	h := newHarness(t)
	h.separator.separateErr = errors.New("engine crashed")

	h.svc.Run(context.Background(), testRequest(t))

	// The job still completes, dubbing over the unseparated audio
	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.False(t, h.mixer.called)
}

func TestRunInvalidSeparationFallsBack(t *testing.T) {
	h := newHarness(t)
	h.separator.invalid = true

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.False(t, h.mixer.called)
}

func TestRunCombineFallsBackToSequential(t *testing.T) {
	h := newHarness(t)
	h.compositor.renderErr = errors.New("filter graph too complex")

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.True(t, h.compositor.seqCalled)
}

func TestRunCombineBothPathsFailing(t *testing.T) {
	h := newHarness(t)
	h.compositor.renderErr = errors.New("filter graph too complex")
	h.compositor.seqErr = errors.New("concat failed")

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateFailed, h.rec.state)
	assert.Contains(t, h.rec.message, "combination")
}

func TestRunMixFailureKeepsVocalsOnly(t *testing.T) {
	h := newHarness(t)
	h.mixer.mixErr = errors.New("amix exploded")

	h.svc.Run(context.Background(), testRequest(t))

	// Mix failure degrades to the vocals-only track, never fails the job
	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.True(t, h.mixer.called)
}

func TestRunTranscriptionFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.collab.transcribeErr = errors.New("service unavailable")

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateFailed, h.rec.state)
	assert.Contains(t, h.rec.message, "transcription")
}

func TestRunDroppedSegmentsStillRender(t *testing.T) {
	h := newHarness(t)
	h.collab.dropAll = true

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.Empty(t, h.compositor.lastRender.Segments)
	assert.InDelta(t, 10.0, h.compositor.lastRender.TotalDuration, 1e-9)
}

func TestRunRejectsSourceWithoutVideoStream(t *testing.T) {
	h := newHarness(t)
	h.media.noVideo = true

	h.svc.Run(context.Background(), testRequest(t))

	assert.Equal(t, models.JobStateFailed, h.rec.state)
	assert.Contains(t, h.rec.message, "video stream")
	// Rejected before any stage ran
	assert.Empty(t, h.rec.progress)
}

func TestRunShortTimelineRelaxesTrackSizeFloor(t *testing.T) {
	h := newHarness(t, func(cfg *config.PipelineConfig) { cfg.MinTrackBytes = 1000 })
	h.media.duration = 0.001
	h.collab.dropAll = true
	h.compositor.renderSize = 64

	h.svc.Run(context.Background(), testRequest(t))

	// A near-empty timeline renders a tiny silent track; the size floor
	// scales down with the probed duration instead of failing the job.
	assert.Equal(t, models.JobStateCompleted, h.rec.state)
	assert.Empty(t, h.compositor.lastRender.Segments)
}

func TestRunMissingSource(t *testing.T) {
	h := newHarness(t)

	req := testRequest(t)
	req.VideoPath = ""
	req.SourceObject = ""
	h.svc.Run(context.Background(), req)

	assert.Equal(t, models.JobStateFailed, h.rec.state)
}

func TestValidateArtifact(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0644))

	assert.NoError(t, validateArtifact(path, 50))

	err := validateArtifact(path, 1000)
	var vErr *FinalValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, int64(100), vErr.Size)

	err = validateArtifact(filepath.Join(dir, "missing.bin"), 50)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "missing")
}
