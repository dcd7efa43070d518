package separation

import (
	"errors"
	"fmt"
	"sort"
)

// Well-known stem names
const (
	StemVocals        = "vocals"
	StemAccompaniment = "accompaniment"
)

// ErrOutputNotFound means the engine exited cleanly but none of the known
// output directory layouts contained stems.
var ErrOutputNotFound = errors.New("separation engine output not found")

// ErrNoStems means there were no non-vocal stems to build an accompaniment
// track from.
var ErrNoStems = errors.New("no non-vocal stems available")

// QualityGateError reports a separation whose quality score fell below the
// configured threshold while fallback was disabled.
type QualityGateError struct {
	Score     float64
	Threshold float64
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("separation quality %.3f below threshold %.3f and fallback disabled", e.Score, e.Threshold)
}

// StemSet maps stem names to WAV file paths for one separation run. It is
// created once per job and discarded with the job's temp directory.
type StemSet struct {
	Stems             map[string]string
	QualityScore      float64
	RecommendFallback bool
}

// Vocals returns the vocals stem path.
func (s *StemSet) Vocals() (string, bool) {
	return s.Path(StemVocals)
}

// Path returns the path of a named stem.
func (s *StemSet) Path(name string) (string, bool) {
	if s == nil || s.Stems == nil {
		return "", false
	}
	p, ok := s.Stems[name]
	return p, ok
}

// NonVocalStems returns the paths of all stems other than vocals and
// accompaniment, in deterministic name order.
func (s *StemSet) NonVocalStems() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Stems))
	for name := range s.Stems {
		if name != StemVocals && name != StemAccompaniment {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = s.Stems[name]
	}
	return paths
}
