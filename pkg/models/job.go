package models

import "time"

// JobRecord tracks the lifecycle of a single dubbing job. Records live only
// in memory for the lifetime of the owning process; callers poll them by id.
type JobRecord struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Progress       int       `json:"progress"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	ResultLocation string    `json:"result_location,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Job states
const (
	JobStateStarted    = "started"
	JobStateProcessing = "processing"
	JobStateCompleted  = "completed"
	JobStateFailed     = "failed"
)

// Processing modes
const (
	ModePreserveMusic = "preserve_music"
	ModeReplaceAll    = "replace_all"
)

// DubRequest describes one submitted dubbing job. Exactly one of VideoPath
// (local mode) or SourceObject (queued mode, object storage key) is set.
type DubRequest struct {
	JobID            string  `json:"job_id"`
	VideoPath        string  `json:"video_path,omitempty"`
	SourceObject     string  `json:"source_object,omitempty"`
	OriginalFilename string  `json:"original_filename"`
	TargetLanguage   string  `json:"target_language"`
	Voice            string  `json:"voice"`
	SeparationModel  string  `json:"separation_model"`
	Mode             string  `json:"mode"`
	VocalBalance     float64 `json:"vocal_balance"`
}
