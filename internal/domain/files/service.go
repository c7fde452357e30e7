package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/utils/fileid"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
	"github.com/campersurfer/Autopicker/internal/utils/sanitize"
)

// Repository defines FileRecord persistence operations needed by the service.
type Repository interface {
	Create(ctx context.Context, record *FileRecord) error
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	List(ctx context.Context, identity string) ([]*FileRecord, error)
	UpdateStatus(ctx context.Context, id string, status extraction.Status, reason string) error
	Delete(ctx context.Context, id string) error
	Expired(ctx context.Context, now time.Time) ([]*FileRecord, error)
}

// Storage defines blob storage operations.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// Service orchestrates file ingestion, retrieval, and eviction.
type Service struct {
	cfg     *config.Config
	repo    Repository
	storage Storage
	log     zerolog.Logger
}

func NewService(cfg *config.Config, repo Repository, storage Storage, log zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		repo:    repo,
		storage: storage,
		log:     log.With().Str("component", "file-service").Logger(),
	}
}

// Upload consumes the stream, verifies it against the upload policies,
// and persists the blob plus its FileRecord. No partial record survives
// a failed upload.
func (s *Service) Upload(ctx context.Context, body io.Reader, declaredName, declaredMIME, identity string) (*FileRecord, error) {
	data, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxFileBytes+1))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to read upload stream", err, "b41d8f02-6c3a-47e9-9a5d-0f82c1e7d634")
	}
	if int64(len(data)) > s.cfg.MaxFileBytes {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypePayloadTooLarge,
			"upload exceeds maximum file size", nil, "5e97a3c8-1f40-4b26-8d71-c9e06b2a4f13",
			map[string]any{"max_bytes": s.cfg.MaxFileBytes})
	}
	if len(data) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"uploaded file is empty", nil, "2c6f91ad-84b5-4e0a-bd38-7a15f0c9e862")
	}

	if sanitize.IsTraversal(declaredName) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"filename must not contain path traversal sequences", nil, "f3b82a61-9c05-4d4e-b7f2-51a0c8d6e394")
	}
	sanitizedName := sanitize.Filename(declaredName)

	detected := mimetype.Detect(data)
	detectedMIME := baseMIME(detected.String())
	if !s.mimeAllowed(detected, detectedMIME) {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnsupportedType,
			"detected content type is not allowed", nil, "8a04dd3b-27c9-4f51-b6e8-394f07a1c5d2",
			map[string]any{"detected_mime": detectedMIME})
	}

	sum := sha256.Sum256(data)
	hash := fmt.Sprintf("%x", sum[:])

	id := fileid.New()
	ext := detected.Extension()
	key := fmt.Sprintf("%s/%s%s", fileid.Shard(id), id, ext)

	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), detectedMIME); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to store upload")
	}

	declaredBase := baseMIME(declaredMIME)
	record := &FileRecord{
		ID:               id,
		OriginalFilename: declaredName,
		Filename:         sanitizedName,
		DeclaredMIME:     declaredBase,
		DetectedMIME:     detectedMIME,
		MIMEMismatch:     declaredBase != "" && declaredBase != detectedMIME,
		Size:             int64(len(data)),
		SHA256:           hash,
		Identity:         identity,
		StorageKey:       key,
		UploadedAt:       time.Now().UTC(),
		RetentionUntil:   time.Now().UTC().Add(s.cfg.FileRetention),
		ExtractionStatus: extraction.StatusPending,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.log.Error().Err(delErr).Str("key", key).Msg("failed to remove orphaned blob")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to persist file record")
	}

	s.log.Info().
		Str("file_id", id).
		Str("detected_mime", detectedMIME).
		Int64("size", record.Size).
		Msg("file uploaded")

	return record, nil
}

// Get returns the record when it exists and the identity may see it.
func (s *Service) Get(ctx context.Context, id, identity string) (*FileRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load file record")
	}
	if record == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"file not found", nil, "d72c50e9-3b18-4a6f-95c4-e801f6b3a927")
	}
	if record.Identity != "" && identity != "" && record.Identity != identity {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"file belongs to a different identity", nil, "f19e6a40-58d2-4c7b-a3f5-62d90c8e1b74")
	}
	return record, nil
}

// List returns the records visible to the identity, newest first.
func (s *Service) List(ctx context.Context, identity string) ([]*FileRecord, error) {
	records, err := s.repo.List(ctx, identity)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list file records")
	}
	return records, nil
}

// Open returns the stored bytes of the record for extraction or replay.
func (s *Service) Open(ctx context.Context, record *FileRecord) (io.ReadCloser, error) {
	reader, _, err := s.storage.Download(ctx, record.StorageKey)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to open stored file")
	}
	return reader, nil
}

// Delete removes the blob and the record. Extractions are retained;
// they are keyed by content hash and a re-upload of identical bytes
// reuses them.
func (s *Service) Delete(ctx context.Context, id, identity string) error {
	record, err := s.Get(ctx, id, identity)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, record.StorageKey); err != nil {
		s.log.Warn().Err(err).Str("file_id", id).Msg("blob delete failed, removing record anyway")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete file record")
	}

	s.log.Info().Str("file_id", id).Msg("file deleted")
	return nil
}

// MarkStatus records an extraction status transition.
func (s *Service) MarkStatus(ctx context.Context, id string, status extraction.Status, reason string) error {
	if err := s.repo.UpdateStatus(ctx, id, status, reason); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update extraction status")
	}
	return nil
}

// SweepExpired deletes every record past its retention window and
// returns how many were removed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.Expired(ctx, time.Now().UTC())
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list expired files")
	}

	removed := 0
	for _, record := range expired {
		if err := s.storage.Delete(ctx, record.StorageKey); err != nil {
			s.log.Warn().Err(err).Str("file_id", record.ID).Msg("expired blob delete failed")
		}
		if err := s.repo.Delete(ctx, record.ID); err != nil {
			s.log.Error().Err(err).Str("file_id", record.ID).Msg("expired record delete failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("retention sweep complete")
	}
	return removed, nil
}

// SupportedTypes returns the upload allow-list.
func (s *Service) SupportedTypes() []string {
	out := make([]string, len(s.cfg.AllowedMIMETypes))
	copy(out, s.cfg.AllowedMIMETypes)
	return out
}

func (s *Service) mimeAllowed(detected *mimetype.MIME, detectedBase string) bool {
	for _, allowed := range s.cfg.AllowedMIMETypes {
		if detectedBase == allowed || detected.Is(allowed) {
			return true
		}
	}
	return false
}

func baseMIME(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
