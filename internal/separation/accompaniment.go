package separation

import (
	"fmt"

	"dubber/internal/audio"
)

// BuildAccompaniment merges the given non-vocal stems into one background
// track at outPath. Stems are resampled to the first stem's rate, truncated
// to the shortest common length, summed, and peak-normalized to the ceiling.
// With a single stem the output equals that stem up to normalization.
func BuildAccompaniment(stemPaths []string, outPath string, ceiling float64) error {
	if len(stemPaths) == 0 {
		return ErrNoStems
	}

	var merged *audio.Buffer
	for _, stemPath := range stemPaths {
		buf, err := audio.DecodeWAV(stemPath)
		if err != nil {
			return fmt.Errorf("failed to load stem %s: %w", stemPath, err)
		}

		if merged == nil {
			merged = buf
			continue
		}

		if buf.SampleRate != merged.SampleRate {
			buf = buf.Resample(merged.SampleRate)
		}
		if buf.Channels != merged.Channels {
			merged = merged.DownmixMono()
			buf = buf.DownmixMono()
		}

		if buf.Frames() < merged.Frames() {
			merged.Truncate(buf.Frames())
		} else {
			buf.Truncate(merged.Frames())
		}

		if err := merged.Add(buf); err != nil {
			return fmt.Errorf("failed to sum stem %s: %w", stemPath, err)
		}
	}

	merged.Normalize(ceiling)

	if err := audio.EncodeWAV(outPath, merged); err != nil {
		return fmt.Errorf("failed to write accompaniment: %w", err)
	}
	return nil
}
