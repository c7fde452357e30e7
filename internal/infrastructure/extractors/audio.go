package extractors

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/infrastructure/transcribe"
)

// AudioExtractor delegates to the whisper transcription sidecar. An
// empty transcript is a ready result, not a failure; retries and pacing
// live in the sidecar client.
type AudioExtractor struct {
	textCap int
	client  *transcribe.Client
	log     zerolog.Logger
}

func NewAudioExtractor(textCap int, client *transcribe.Client, log zerolog.Logger) *AudioExtractor {
	return &AudioExtractor{
		textCap: textCap,
		client:  client,
		log:     log.With().Str("component", "audio-extractor").Logger(),
	}
}

func (e *AudioExtractor) Handles() []string {
	return []string{
		"audio/mpeg",
		"audio/wav",
		"audio/x-wav",
		"audio/mp4",
		"audio/ogg",
		"audio/flac",
	}
}

func (e *AudioExtractor) Info() (string, string) {
	return "whisper", "1.0"
}

func (e *AudioExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
	result, err := e.client.Transcribe(ctx, "audio", r)
	if err != nil {
		return nil, extraction.NewError(extraction.ReasonOf(err), err)
	}

	text, truncated := extraction.NormalizeText(result.Text, e.textCap)

	out := &extraction.Extraction{
		Kind:      extraction.KindTranscript,
		Text:      text,
		Truncated: truncated,
		Metadata: extraction.Metadata{
			Language:        result.Language,
			DurationSeconds: result.Duration,
			Format:          "transcript",
		},
	}
	if text == "" {
		out.Warnings = append(out.Warnings, "transcription returned no segments")
	}
	return out, nil
}
