package separation

import (
	"math"

	"dubber/internal/audio"
)

// Quality scores returned when the assessment cannot run. Assessment never
// fails the separation; it only degrades the score.
const (
	scoreMissingTrack = 0.2
	scoreComputeError = 0.3
)

// AssessQuality scores how usable a separation result is, in [0, 1]. The
// score combines how evenly energy splits between vocals and accompaniment
// with how close their peak levels are; a one-sided split means the engine
// left most of the mix in a single stem.
func (s *Separator) AssessQuality(set *StemSet) float64 {
	vocalsPath, okV := set.Path(StemVocals)
	accompPath, okA := set.Path(StemAccompaniment)
	if !okV || !okA {
		s.log.Warn("Missing vocals or accompaniment for quality assessment")
		return scoreMissingTrack
	}

	vocals, err := audio.DecodeWAV(vocalsPath)
	if err != nil {
		s.log.Warnf("Quality assessment failed: %v", err)
		return scoreComputeError
	}
	accomp, err := audio.DecodeWAV(accompPath)
	if err != nil {
		s.log.Warnf("Quality assessment failed: %v", err)
		return scoreComputeError
	}

	vocalsEnergy := vocals.MeanSquare()
	accompEnergy := accomp.MeanSquare()

	totalEnergy := vocalsEnergy + accompEnergy
	if totalEnergy <= 0 {
		return scoreComputeError
	}
	energyBalance := math.Min(vocalsEnergy, accompEnergy) / totalEnergy

	vocalsPeak := vocals.Peak()
	accompPeak := accomp.Peak()
	maxPeak := math.Max(vocalsPeak, accompPeak)
	if maxPeak <= 0 {
		return scoreComputeError
	}
	dynamicRange := math.Min(vocalsPeak, accompPeak) / maxPeak

	score := (energyBalance*2 + dynamicRange) / 2
	return math.Min(score, 1.0)
}
