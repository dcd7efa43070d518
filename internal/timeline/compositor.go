package timeline

import (
	"context"
	"fmt"
	"os"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
	"dubber/pkg/models"
)

// timeEpsilon is the placement tolerance in seconds; segment offsets carry
// millisecond precision.
const timeEpsilon = 1e-3

// Compositor renders a Timeline of synthesized speech clips into one
// continuous track of exactly TotalDuration seconds.
type Compositor struct {
	ffmpeg *media.FFmpeg
	cfg    config.PipelineConfig
	log    *logging.Logger
}

// New creates a Compositor.
func New(ffmpeg *media.FFmpeg, cfg config.PipelineConfig, log *logging.Logger) *Compositor {
	return &Compositor{ffmpeg: ffmpeg, cfg: cfg, log: log}
}

// Render places every segment's clip at its start offset and mixes them onto
// a silent base track in a single pass. Overlapping segments are summed.
// When the single-pass graph fails it degrades to sequential concatenation.
// A timeline with no usable clips yields a pure-silence track, not an error.
func (c *Compositor) Render(ctx context.Context, tl models.Timeline, outputPath string) error {
	segs := c.validSegments(tl)
	sampleRate, channels := c.probeFormat(ctx, segs)

	if len(segs) == 0 {
		c.log.Warn("No valid audio clips on timeline, rendering silent track")
		return c.ffmpeg.Silence(ctx, outputPath, tl.TotalDuration, sampleRate, channels)
	}

	clips := make([]media.DelayedClip, len(segs))
	for i, seg := range segs {
		clips[i] = media.DelayedClip{
			Path:    seg.AudioPath,
			DelayMS: int(seg.StartTime * 1000),
		}
	}

	if err := c.ffmpeg.DelayMix(ctx, clips, outputPath, tl.TotalDuration, sampleRate, channels); err != nil {
		c.log.Warnf("Single-pass mixing failed: %v", err)
		return c.renderSequential(ctx, segs, tl.TotalDuration, outputPath, sampleRate, channels)
	}
	return nil
}

// RenderSequential is the explicit fallback path: clips are laid out in start
// order with silence filling the gaps and the tail, then concatenated.
func (c *Compositor) RenderSequential(ctx context.Context, tl models.Timeline, outputPath string) error {
	segs := c.validSegments(tl)
	sampleRate, channels := c.probeFormat(ctx, segs)

	if len(segs) == 0 {
		return c.ffmpeg.Silence(ctx, outputPath, tl.TotalDuration, sampleRate, channels)
	}
	return c.renderSequential(ctx, segs, tl.TotalDuration, outputPath, sampleRate, channels)
}

func (c *Compositor) renderSequential(ctx context.Context, segs []models.Segment, totalDuration float64, outputPath string, sampleRate, channels int) error {
	plan := sequencePlan(segs, totalDuration)

	var inputs []string
	var tempFiles []string
	defer func() {
		for _, f := range tempFiles {
			os.Remove(f)
		}
	}()

	for i, step := range plan {
		if step.ClipPath != "" {
			inputs = append(inputs, step.ClipPath)
			continue
		}
		silencePath := fmt.Sprintf("%s.silence_%d.wav", outputPath, i)
		if err := c.ffmpeg.Silence(ctx, silencePath, step.SilenceDuration, sampleRate, channels); err != nil {
			return fmt.Errorf("failed to render gap silence: %w", err)
		}
		tempFiles = append(tempFiles, silencePath)
		inputs = append(inputs, silencePath)
	}

	if err := c.ffmpeg.ConcatAudio(ctx, inputs, outputPath, sampleRate, channels); err != nil {
		return fmt.Errorf("fallback concatenation failed: %w", err)
	}
	return nil
}

// planStep is one piece of the sequential layout: either a silence span or a
// clip file.
type planStep struct {
	SilenceDuration float64
	ClipPath        string
}

// sequencePlan walks segments in start order, inserting silence for every
// gap between the running cursor and the next start, and a trailing silence
// to reach totalDuration. Segments starting before the cursor (overlaps) are
// appended directly; their content is kept, never clipped.
func sequencePlan(segs []models.Segment, totalDuration float64) []planStep {
	var plan []planStep
	cursor := 0.0

	for _, seg := range segs {
		if gap := seg.StartTime - cursor; gap > timeEpsilon {
			plan = append(plan, planStep{SilenceDuration: gap})
		}
		plan = append(plan, planStep{ClipPath: seg.AudioPath})
		cursor = seg.EndTime
	}

	if tailGap := totalDuration - cursor; tailGap > timeEpsilon {
		plan = append(plan, planStep{SilenceDuration: tailGap})
	}

	return plan
}

// validSegments returns the segments carrying an existing audio clip, in
// ascending start order.
func (c *Compositor) validSegments(tl models.Timeline) []models.Segment {
	var valid []models.Segment
	for _, seg := range tl.SortedByStart() {
		if seg.AudioPath == "" {
			continue
		}
		if _, err := os.Stat(seg.AudioPath); err != nil {
			c.log.Warnf("Segment clip not found, skipping: %s", seg.AudioPath)
			continue
		}
		valid = append(valid, seg)
	}
	return valid
}

// probeFormat detects the output format from the first valid clip, defaulting
// to the configured synthesis format when probing fails.
func (c *Compositor) probeFormat(ctx context.Context, segs []models.Segment) (int, int) {
	for _, seg := range segs {
		sampleRate, channels, err := c.ffmpeg.ProbeAudioFormat(ctx, seg.AudioPath)
		if err == nil {
			c.log.Infof("Detected audio format: %dHz, %d channels", sampleRate, channels)
			return sampleRate, channels
		}
		c.log.Warnf("Could not detect audio format, using defaults: %v", err)
		break
	}
	return c.cfg.DefaultSampleRate, c.cfg.DefaultChannels
}
