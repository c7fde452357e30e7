// Package extractors holds the format-specific extractor implementations
// and the MIME-keyed registry the dispatcher selects from.
package extractors

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/infrastructure/transcribe"
)

// Registry resolves a detected MIME type to its extractor. Adding a new
// format means registering one more extractor here.
type Registry struct {
	byMIME map[string]extraction.Extractor
	all    []extraction.Extractor
}

// NewRegistry registers every available extractor. The audio extractor
// is only registered when a transcription sidecar is configured, so
// audio uploads degrade to unsupported rather than failing.
func NewRegistry(cfg *config.Config, whisper *transcribe.Client, log zerolog.Logger) *Registry {
	r := &Registry{byMIME: make(map[string]extraction.Extractor)}

	textCap := cfg.ExtractionTextCap
	timeout := cfg.ExtractionTimeout
	readCap := cfg.MaxFileBytes

	r.register(NewTextExtractor(textCap, timeout, readCap))
	r.register(NewCSVExtractor(textCap, timeout, readCap))
	r.register(NewJSONExtractor(textCap, timeout, readCap))
	r.register(NewPDFExtractor(textCap, timeout, readCap))
	r.register(NewDocxExtractor(textCap, timeout, readCap))
	r.register(NewXlsxExtractor(textCap, timeout, readCap))
	r.register(NewImageExtractor(timeout, readCap))
	if whisper.Enabled() {
		r.register(NewAudioExtractor(textCap, whisper, log))
	}

	return r
}

func (r *Registry) register(e extraction.Extractor) {
	r.all = append(r.all, e)
	for _, mime := range e.Handles() {
		r.byMIME[mime] = e
	}
}

// ForMIME returns the extractor registered for the detected MIME type.
func (r *Registry) ForMIME(mime string) (extraction.Extractor, bool) {
	e, ok := r.byMIME[mime]
	return e, ok
}

// Extractors lists every registered extractor.
func (r *Registry) Extractors() []extraction.Extractor {
	out := make([]extraction.Extractor, len(r.all))
	copy(out, r.all)
	return out
}

// readAll consumes r up to cap+1 bytes and reports whether the input was
// larger than the cap.
func readAll(r io.Reader, readCap int64) ([]byte, bool, error) {
	if readCap <= 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(r, readCap+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > readCap {
		return data[:readCap], true, nil
	}
	return data, false, nil
}
