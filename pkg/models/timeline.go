package models

import "sort"

// Segment is one timestamped span of speech. Times are seconds from the
// start of the source video. AudioPath is empty when synthesis produced no
// clip for the span; such segments are skipped during composition.
type Segment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text,omitempty"`
	AudioPath string  `json:"audio_path,omitempty"`
}

// Duration returns the span length in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Timeline is the ordered set of speech segments to place onto a track of
// TotalDuration seconds. Segments may overlap; overlapping spans are mixed,
// never dropped.
type Timeline struct {
	Segments      []Segment `json:"segments"`
	TotalDuration float64   `json:"total_duration"`
}

// SortedByStart returns a copy of the segments in ascending start order.
// The sort is stable so equal starts keep their transcript order.
func (t Timeline) SortedByStart() []Segment {
	segs := make([]Segment, len(t.Segments))
	copy(segs, t.Segments)
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].StartTime < segs[j].StartTime
	})
	return segs
}
