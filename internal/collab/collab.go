// Package collab defines the ports to the three external AI collaborators:
// transcription, translation, and speech synthesis. The pipeline depends on
// these interfaces only; network clients and test fakes both satisfy them.
package collab

import (
	"context"

	"dubber/pkg/models"
)

// Transcriber turns a vocal audio track into timestamped transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]models.Segment, error)
}

// Translator rewrites segment text into the target language, keeping the
// timestamps untouched.
type Translator interface {
	Translate(ctx context.Context, segments []models.Segment, targetLanguage string) ([]models.Segment, error)
}

// Synthesizer renders one text span to an audio clip at outputPath. An empty
// returned path means the collaborator produced no clip for the span; the
// segment is dropped, never retried.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, voice, outputPath string) (string, error)
}
