package extractors

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"time"

	// Register the stdlib decoders for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

// ImageExtractor produces a short caption with the image dimensions.
// OCR is not bundled; an OCR-capable extractor can replace this one in
// the registry without touching the rest of the pipeline.
type ImageExtractor struct {
	timeout time.Duration
	readCap int64
}

func NewImageExtractor(timeout time.Duration, readCap int64) *ImageExtractor {
	return &ImageExtractor{timeout: timeout, readCap: readCap}
}

func (e *ImageExtractor) Handles() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
}

func (e *ImageExtractor) Info() (string, string) {
	return "image", "1.0"
}

func (e *ImageExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*extraction.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, extraction.NewError(extraction.FailureTimeout, err)
	}

	data, tooLarge, err := readAll(r, e.readCap)
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}
	if tooLarge {
		return nil, extraction.NewError(extraction.FailureTooLarge, fmt.Errorf("image larger than %d bytes", e.readCap))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, extraction.NewError(extraction.FailureMalformed, err)
	}

	caption := fmt.Sprintf("%s image, %dx%d pixels", format, cfg.Width, cfg.Height)
	return &extraction.Extraction{
		Kind: extraction.KindImageCaption,
		Text: caption,
		Metadata: extraction.Metadata{
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: format,
		},
	}, nil
}
