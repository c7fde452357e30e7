package files

import (
	"time"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

// FileRecord is the immutable metadata of one uploaded file. The bytes
// live in the blob store under StorageKey; only ExtractionStatus and
// FailureReason change after creation.
type FileRecord struct {
	ID               string            `json:"id"`
	OriginalFilename string            `json:"original_filename"`
	Filename         string            `json:"filename"`
	DeclaredMIME     string            `json:"declared_mime,omitempty"`
	DetectedMIME     string            `json:"detected_mime"`
	MIMEMismatch     bool              `json:"mime_mismatch,omitempty"`
	Size             int64             `json:"size"`
	SHA256           string            `json:"sha256"`
	Identity         string            `json:"-"`
	StorageKey       string            `json:"-"`
	UploadedAt       time.Time         `json:"uploaded_at"`
	RetentionUntil   time.Time         `json:"retention_until"`
	ExtractionStatus extraction.Status `json:"extraction_status"`
	FailureReason    string            `json:"failure_reason,omitempty"`
}

// Expired reports whether the record has passed its retention window.
func (r *FileRecord) Expired(now time.Time) bool {
	return !r.RetentionUntil.IsZero() && now.After(r.RetentionUntil)
}
