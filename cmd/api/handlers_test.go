package main

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/internal/registry"
)

type fakeProber struct {
	hasVideo bool
	err      error
}

func (f *fakeProber) ProbeMedia(ctx context.Context, path string) (*media.Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &media.Info{Duration: 10, HasVideo: f.hasVideo, HasAudio: true}, nil
}

func newTestAPI(t *testing.T) (*API, *gin.Engine) {
	t.Helper()
	log, err := logging.NewLogger(logging.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.MaxUploadMB = 10
	cfg.Server.RateLimitRPS = 100
	cfg.Server.RateLimitBurst = 100
	cfg.Pipeline.WorkDir = t.TempDir()
	cfg.Pipeline.OutputDir = t.TempDir()
	cfg.Pipeline.DefaultModel = "htdemucs"
	cfg.Pipeline.DefaultMode = "preserve_music"
	cfg.Pipeline.DefaultBalance = 0.8

	reg := registry.New()
	api := &API{
		cfg:      cfg,
		log:      log,
		registry: reg,
		recorder: reg,
	}
	return api, setupRouter(api)
}

func multipartRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if filename != "" {
		part, err := writer.CreateFormFile("video", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake video bytes"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dub", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestGetOptions(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/options", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "htdemucs")
	assert.Contains(t, w.Body.String(), "preserve_music")
	assert.Contains(t, w.Body.String(), "pt-BR")
}

func TestCreateDubJobRequiresFile(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "", map[string]string{"target_language": "pt-BR"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No video file")
}

func TestCreateDubJobRejectsBadExtension(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "movie.avi", map[string]string{"target_language": "pt-BR"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unsupported video format")
}

func TestCreateDubJobRejectsNonVideoContent(t *testing.T) {
	api, router := newTestAPI(t)
	api.prober = &fakeProber{hasVideo: false}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "movie.mp4", map[string]string{"target_language": "pt-BR"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "video stream")

	// The staged upload was removed with its work directory
	entries, err := os.ReadDir(api.cfg.Pipeline.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateDubJobRejectsUnprobeableFile(t *testing.T) {
	api, router := newTestAPI(t)
	api.prober = &fakeProber{err: context.DeadlineExceeded}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "movie.mp4", map[string]string{"target_language": "pt-BR"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDubJobRejectsUnknownLanguage(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "movie.mp4", map[string]string{"target_language": "xx-XX"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported target language")
}

func TestCreateDubJobRejectsBadBalance(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "movie.mp4", map[string]string{
		"target_language": "pt-BR",
		"vocal_balance":   "1.5",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "vocal_balance")
}

func TestCreateDubJobRejectsUnknownVoice(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "movie.mp4", map[string]string{
		"target_language": "pt-BR",
		"voice":           "not-a-voice",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown voice")
}

func TestGetJobNotFound(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJobReturnsRecord(t *testing.T) {
	api, router := newTestAPI(t)

	api.registry.Create("job-1")
	api.registry.SetProgress("job-1", 50, "Translating text...")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"progress":50`)
	assert.Contains(t, w.Body.String(), "processing")
}

func TestDownloadBeforeCompletion(t *testing.T) {
	api, router := newTestAPI(t)

	api.registry.Create("job-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/download", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDownloadServesLocalResult(t *testing.T) {
	api, router := newTestAPI(t)

	resultPath := filepath.Join(api.cfg.Pipeline.OutputDir, "job-1_dubbed_movie.mp4")
	require.NoError(t, os.WriteFile(resultPath, []byte("final video"), 0644))

	api.registry.Create("job-1")
	api.registry.Complete("job-1", resultPath)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/download", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "final video", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "job-1_dubbed_movie.mp4")
}

func TestDownloadMissingResult(t *testing.T) {
	api, router := newTestAPI(t)

	api.registry.Create("job-1")
	api.registry.Complete("job-1", filepath.Join(api.cfg.Pipeline.OutputDir, "vanished.mp4"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/download", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
