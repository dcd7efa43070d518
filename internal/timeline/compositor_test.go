package timeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/pkg/models"
)

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	log, err := logging.NewLogger(logging.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	return New(nil, config.PipelineConfig{
		DefaultSampleRate: 24000,
		DefaultChannels:   1,
	}, log)
}

func TestSequencePlanFillsGapsAndTail(t *testing.T) {
	segs := []models.Segment{
		{StartTime: 0, EndTime: 2, AudioPath: "a.wav"},
		{StartTime: 2, EndTime: 4.5, AudioPath: "b.wav"},
		{StartTime: 6, EndTime: 8, AudioPath: "c.wav"},
	}

	plan := sequencePlan(segs, 9)

	require.Len(t, plan, 5)
	assert.Equal(t, "a.wav", plan[0].ClipPath)
	assert.Equal(t, "b.wav", plan[1].ClipPath)
	assert.InDelta(t, 1.5, plan[2].SilenceDuration, 1e-9)
	assert.Equal(t, "c.wav", plan[3].ClipPath)
	assert.InDelta(t, 1.0, plan[4].SilenceDuration, 1e-9)
}

func TestSequencePlanLeadingGap(t *testing.T) {
	segs := []models.Segment{
		{StartTime: 3, EndTime: 5, AudioPath: "a.wav"},
	}

	plan := sequencePlan(segs, 5)

	require.Len(t, plan, 2)
	assert.InDelta(t, 3.0, plan[0].SilenceDuration, 1e-9)
	assert.Equal(t, "a.wav", plan[1].ClipPath)
}

func TestSequencePlanOverlapNeverInsertsNegativeSilence(t *testing.T) {
	segs := []models.Segment{
		{StartTime: 0, EndTime: 4, AudioPath: "a.wav"},
		{StartTime: 2, EndTime: 3, AudioPath: "b.wav"},
	}

	plan := sequencePlan(segs, 4)

	for _, step := range plan {
		assert.GreaterOrEqual(t, step.SilenceDuration, 0.0)
	}
	// Both clips survive the overlap
	var clips []string
	for _, step := range plan {
		if step.ClipPath != "" {
			clips = append(clips, step.ClipPath)
		}
	}
	assert.Equal(t, []string{"a.wav", "b.wav"}, clips)
}

func TestSequencePlanEmpty(t *testing.T) {
	plan := sequencePlan(nil, 7)

	require.Len(t, plan, 1)
	assert.InDelta(t, 7.0, plan[0].SilenceDuration, 1e-9)
}

func TestSequencePlanIgnoresSubMillisecondGaps(t *testing.T) {
	segs := []models.Segment{
		{StartTime: 0, EndTime: 2, AudioPath: "a.wav"},
		{StartTime: 2.0004, EndTime: 4, AudioPath: "b.wav"},
	}

	plan := sequencePlan(segs, 4.0005)

	require.Len(t, plan, 2)
	assert.Equal(t, "a.wav", plan[0].ClipPath)
	assert.Equal(t, "b.wav", plan[1].ClipPath)
}

func TestValidSegmentsFiltersAndSorts(t *testing.T) {
	c := newTestCompositor(t)
	dir := t.TempDir()

	exists := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(exists, []byte("data"), 0644))

	tl := models.Timeline{
		Segments: []models.Segment{
			{StartTime: 5, EndTime: 6, AudioPath: exists},
			{StartTime: 1, EndTime: 2, AudioPath: filepath.Join(dir, "missing.wav")},
			{StartTime: 0, EndTime: 1, AudioPath: exists},
			{StartTime: 2, EndTime: 3}, // no clip synthesized
		},
	}

	segs := c.validSegments(tl)

	require.Len(t, segs, 2)
	assert.Equal(t, 0.0, segs[0].StartTime)
	assert.Equal(t, 5.0, segs[1].StartTime)
}

func TestProbeFormatDefaultsWithoutClips(t *testing.T) {
	c := newTestCompositor(t)

	sampleRate, channels := c.probeFormat(nil, nil)
	assert.Equal(t, 24000, sampleRate)
	assert.Equal(t, 1, channels)
}
