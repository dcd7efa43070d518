package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"dubber/internal/config"
	"dubber/pkg/models"
)

// Client talks to the collaborator endpoints over HTTP. It implements
// Transcriber, Translator, and Synthesizer.
type Client struct {
	cfg  config.CollabConfig
	http *http.Client
}

// NewClient creates a collaborator client.
func NewClient(cfg config.CollabConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type transcriptPayload struct {
	Segments []models.Segment `json:"transcription"`
}

// Transcribe uploads the vocal track and returns the transcript segments in
// start order.
func (c *Client) Transcribe(ctx context.Context, audioPath string) ([]models.Segment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranscribeURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var payload transcriptPayload
	if err := c.do(req, &payload); err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	return payload.Segments, nil
}

type translateRequest struct {
	Segments       []models.Segment `json:"transcription"`
	TargetLanguage string           `json:"target_language"`
}

// Translate sends the transcript for translation. The response carries the
// same timestamps with translated text.
func (c *Client) Translate(ctx context.Context, segments []models.Segment, targetLanguage string) ([]models.Segment, error) {
	reqBody, err := json.Marshal(translateRequest{Segments: segments, TargetLanguage: targetLanguage})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranslateURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var payload transcriptPayload
	if err := c.do(req, &payload); err != nil {
		return nil, fmt.Errorf("translation failed: %w", err)
	}
	return payload.Segments, nil
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

// Synthesize requests speech for one text span and writes the returned clip
// to outputPath. A 204 response means no clip was produced; the empty path
// signals the caller to drop the segment.
func (c *Client) Synthesize(ctx context.Context, text, language, voice, outputPath string) (string, error) {
	reqBody, err := json.Marshal(synthesizeRequest{Text: text, Language: language, Voice: voice})
	if err != nil {
		return "", fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SynthesizeURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("synthesis failed: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create clip file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write clip: %w", err)
	}
	return outputPath, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
