package separation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
)

// expectedStems are the outputs the engine may produce for one track.
var expectedStems = []string{"vocals", "bass", "drums", "other"}

// NormalizeModel maps a requested model id onto an engine model identifier,
// falling back to htdemucs for unknown names.
func NormalizeModel(name string) string {
	switch name {
	case "htdemucs", "mdx_extra", "mdx":
		return name
	default:
		return "htdemucs"
	}
}

// Separator runs the external source-separation engine and gates its results
// on a quality score before the pipeline builds on them.
type Separator struct {
	cfg config.PipelineConfig
	log *logging.Logger
}

// New creates a Separator.
func New(cfg config.PipelineConfig, log *logging.Logger) *Separator {
	return &Separator{cfg: cfg, log: log}
}

// Separate runs the engine on audioPath and returns the discovered stems.
// Results below the quality threshold are returned tagged RecommendFallback
// when fallback is enabled, and fail with QualityGateError when it is not.
func (s *Separator) Separate(ctx context.Context, audioPath, model, outputDir string) (*StemSet, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	model = NormalizeModel(model)
	engineDir := filepath.Join(outputDir, "engine_output")
	if err := os.MkdirAll(engineDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create engine output dir: %w", err)
	}

	trackDir, err := s.runEngine(ctx, audioPath, model, engineDir)
	if err != nil {
		return nil, err
	}

	set := &StemSet{Stems: make(map[string]string)}
	for _, stem := range expectedStems {
		stemPath := filepath.Join(trackDir, stem+".wav")
		if info, err := os.Stat(stemPath); err == nil && !info.IsDir() {
			set.Stems[stem] = stemPath
		}
	}
	if len(set.Stems) == 0 {
		return nil, ErrOutputNotFound
	}

	// Merge the non-vocal stems into a single background track.
	if _, ok := set.Vocals(); ok && len(set.Stems) > 1 {
		accompanimentPath := filepath.Join(trackDir, StemAccompaniment+".wav")
		if err := BuildAccompaniment(set.NonVocalStems(), accompanimentPath, s.cfg.ClipCeiling); err != nil {
			return nil, fmt.Errorf("accompaniment creation failed: %w", err)
		}
		set.Stems[StemAccompaniment] = accompanimentPath
	}

	set.QualityScore = s.AssessQuality(set)
	s.log.Infof("Separation quality score: %.3f", set.QualityScore)

	if set.QualityScore < s.cfg.QualityThreshold {
		s.log.Warnf("Low separation quality detected: %.3f", set.QualityScore)
		if !s.cfg.EnableFallback {
			return nil, &QualityGateError{Score: set.QualityScore, Threshold: s.cfg.QualityThreshold}
		}
		set.RecommendFallback = true
	}

	return set, nil
}

// runEngine invokes the separation engine as a subprocess under the
// configured wall-clock timeout and locates its track output directory.
func (s *Separator) runEngine(ctx context.Context, audioPath, model, engineDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SeparationTimeout)
	defer cancel()

	args := []string{
		"-m", "demucs.separate",
		"-n", model,
		"-o", engineDir,
		"-d", s.cfg.SeparationDevice,
		audioPath,
	}
	s.log.Infof("Running separation engine: %s %s", s.cfg.PythonPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, s.cfg.PythonPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &media.ToolError{
			Tool:    "demucs",
			Timeout: ctx.Err() == context.DeadlineExceeded,
			Stderr:  stderr.String(),
			Err:     err,
		}
	}

	track := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))

	// The engine's directory layout has changed across versions; probe the
	// known conventions in order.
	candidates := []string{
		filepath.Join(engineDir, model, track),
		filepath.Join(engineDir, track),
		filepath.Join(engineDir, "separated", model, track),
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.log.Infof("Found engine output directory: %s", dir)
			return dir, nil
		}
	}

	return "", ErrOutputNotFound
}

// ValidateResult reports whether a separation result is usable: the vocals
// stem must exist on disk with a plausible size and the quality score must
// meet the threshold.
func (s *Separator) ValidateResult(set *StemSet) bool {
	if set == nil {
		return false
	}

	vocalsPath, ok := set.Vocals()
	if !ok {
		s.log.Error("Separation result missing vocals stem")
		return false
	}

	info, err := os.Stat(vocalsPath)
	if err != nil {
		s.log.Errorf("Vocals stem file not found: %s", vocalsPath)
		return false
	}
	if info.Size() < s.cfg.MinStemBytes {
		s.log.Errorf("Vocals stem file too small: %s (%d bytes)", vocalsPath, info.Size())
		return false
	}

	if set.QualityScore < s.cfg.QualityThreshold {
		s.log.Warnf("Separation quality below threshold: %.3f", set.QualityScore)
		return false
	}

	return true
}

// BackgroundMusic picks the background track from a stem set: the merged
// accompaniment when present, otherwise the first remaining non-vocal stem.
func (s *Separator) BackgroundMusic(set *StemSet) (string, bool) {
	if p, ok := set.Path(StemAccompaniment); ok {
		return p, true
	}
	if remaining := set.NonVocalStems(); len(remaining) > 0 {
		return remaining[0], true
	}
	return "", false
}
