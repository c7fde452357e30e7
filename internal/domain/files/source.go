package files

import (
	"context"
	"io"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// Describe exposes the record fields the extraction dispatcher needs.
// Identity scoping happened at the handler; the dispatcher sees every
// file.
func (s *Service) Describe(ctx context.Context, id string) (*extraction.FileDescriptor, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load file record")
	}
	if record == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"file not found", nil, "a6c2e8d4-10b7-4f95-bc31-7e58d20f9a46")
	}

	return &extraction.FileDescriptor{
		ID:            record.ID,
		Filename:      record.Filename,
		DetectedMIME:  record.DetectedMIME,
		SHA256:        record.SHA256,
		Size:          record.Size,
		Status:        record.ExtractionStatus,
		FailureReason: record.FailureReason,
	}, nil
}

// OpenBlob streams the stored bytes for an extraction run.
func (s *Service) OpenBlob(ctx context.Context, id string) (io.ReadCloser, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load file record")
	}
	if record == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"file not found", nil, "31f7b9e0-4d82-4ac6-90d5-8c2e6f1a0b53")
	}
	return s.Open(ctx, record)
}
