package mixer

import (
	"context"
	"fmt"
	"math"
	"os"

	"dubber/internal/audio"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/media"
)

// Mixer blends a vocals track and a background track at a caller-chosen
// balance: 0 is all background, 1 is all vocals.
type Mixer struct {
	ffmpeg *media.FFmpeg
	cfg    config.PipelineConfig
	log    *logging.Logger
}

// New creates a Mixer.
func New(ffmpeg *media.FFmpeg, cfg config.PipelineConfig, log *logging.Logger) *Mixer {
	return &Mixer{ffmpeg: ffmpeg, cfg: cfg, log: log}
}

// Mix blends the two tracks into outputPath. The primary path boosts vocals
// and ducks the music for intelligibility; if it fails to execute, a raw
// PCM fallback mixes with symmetric gains instead.
func (m *Mixer) Mix(ctx context.Context, vocalsPath, musicPath, outputPath string, balance float64) error {
	if _, err := os.Stat(vocalsPath); err != nil {
		return fmt.Errorf("vocals file not found: %w", err)
	}
	if _, err := os.Stat(musicPath); err != nil {
		return fmt.Errorf("music file not found: %w", err)
	}

	vocalGain, musicGain := m.primaryGains(balance)
	m.log.Infof("Mixing with vocal gain %.2f, music gain %.2f", vocalGain, musicGain)

	err := m.ffmpeg.GainMix(ctx, vocalsPath, musicPath, outputPath, vocalGain, musicGain,
		m.cfg.DefaultSampleRate, m.cfg.DefaultChannels)
	if err == nil {
		return nil
	}

	m.log.Warnf("Primary mixing failed, using raw PCM fallback: %v", err)
	if fbErr := m.mixPCM(vocalsPath, musicPath, outputPath, balance); fbErr != nil {
		return fmt.Errorf("both mixing paths failed: primary: %v, fallback: %w", err, fbErr)
	}
	return nil
}

// primaryGains biases the blend toward vocal intelligibility: vocals are
// boosted up to a cap while the music is ducked.
func (m *Mixer) primaryGains(balance float64) (vocalGain, musicGain float64) {
	vocalGain = math.Min(balance*m.cfg.VocalBoost, m.cfg.VocalGainCap)
	musicGain = (1 - balance) * m.cfg.MusicDuck
	return vocalGain, musicGain
}

// mixPCM decodes both tracks to raw sample buffers and blends them with
// symmetric gains: resample to the higher rate, downmix to mono on channel
// mismatch, zero-pad the shorter track, sum, and normalize against clipping.
func (m *Mixer) mixPCM(vocalsPath, musicPath, outputPath string, balance float64) error {
	vocals, err := audio.DecodeWAV(vocalsPath)
	if err != nil {
		return fmt.Errorf("failed to load vocals: %w", err)
	}
	music, err := audio.DecodeWAV(musicPath)
	if err != nil {
		return fmt.Errorf("failed to load music: %w", err)
	}

	targetRate := vocals.SampleRate
	if music.SampleRate > targetRate {
		targetRate = music.SampleRate
	}
	vocals = vocals.Resample(targetRate)
	music = music.Resample(targetRate)

	if vocals.Channels != music.Channels {
		vocals = vocals.DownmixMono()
		music = music.DownmixMono()
	}

	frames := vocals.Frames()
	if music.Frames() > frames {
		frames = music.Frames()
	}
	vocals.PadTo(frames)
	music.PadTo(frames)

	vocals.Scale(balance)
	music.Scale(1 - balance)

	if err := vocals.Add(music); err != nil {
		return fmt.Errorf("failed to sum tracks: %w", err)
	}
	vocals.Normalize(m.cfg.ClipCeiling)

	if err := audio.EncodeWAV(outputPath, vocals); err != nil {
		return fmt.Errorf("failed to write mixed track: %w", err)
	}
	return nil
}
