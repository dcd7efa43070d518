package pipeline

import (
	"fmt"
	"os"
)

// FinalValidationError reports a missing or implausibly small output file at
// a finalize checkpoint. It is terminal: no further fallback applies.
type FinalValidationError struct {
	Path string
	Size int64
	Err  error
}

func (e *FinalValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("output file missing: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("output file too small: %s (%d bytes)", e.Path, e.Size)
}

func (e *FinalValidationError) Unwrap() error { return e.Err }

// Rendered artifacts scale with the source duration, so a near-empty timeline
// legitimately produces a file under the configured minimum. The floor assumes
// the lowest plausible PCM rate (8 kHz mono 16-bit) plus the WAV header.
const (
	floorBytesPerSecond = 16000
	wavHeaderBytes      = 44
)

// trackFloor returns the minimum plausible byte size for an artifact covering
// duration seconds, capped at the configured minimum.
func (s *Service) trackFloor(duration float64) int64 {
	floor := s.cfg.MinTrackBytes
	if est := int64(duration*floorBytesPerSecond) + wavHeaderBytes; est < floor {
		floor = est
	}
	return floor
}

// validateArtifact checks that a produced file exists and exceeds minBytes.
func validateArtifact(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FinalValidationError{Path: path, Err: err}
	}
	if info.Size() < minBytes {
		return &FinalValidationError{Path: path, Size: info.Size()}
	}
	return nil
}
