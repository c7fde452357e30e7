package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind classifies the canonical representation an extractor produced.
type Kind string

const (
	KindText           Kind = "text"
	KindTable          Kind = "table"
	KindImageCaption   Kind = "image-caption"
	KindTranscript     Kind = "transcript"
	KindStructuredJSON Kind = "structured-json"
)

// Status tracks the extraction lifecycle of a file.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in-progress"
	StatusReady       Status = "ready"
	StatusFailed      Status = "failed"
	StatusUnsupported Status = "unsupported"
)

// Metadata carries the per-kind attributes of an extraction.
type Metadata struct {
	PageCount       int     `json:"page_count,omitempty"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	SheetCount      int     `json:"sheet_count,omitempty"`
	RowCount        int     `json:"row_count,omitempty"`
	Format          string  `json:"format,omitempty"`
}

// Extraction is the canonical textual+metadata representation of an
// uploaded file. Text is always valid UTF-8, NFC normalized, bounded by
// the configured cap.
type Extraction struct {
	FileID           string    `json:"file_id"`
	ContentHash      string    `json:"content_hash"`
	Kind             Kind      `json:"kind"`
	Text             string    `json:"text"`
	Truncated        bool      `json:"truncated,omitempty"`
	Metadata         Metadata  `json:"metadata"`
	ExtractorID      string    `json:"extractor_id"`
	ExtractorVersion string    `json:"extractor_version"`
	ElapsedMS        int64     `json:"elapsed_ms"`
	Warnings         []string  `json:"warnings,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// FailureReason is the typed cause of an extraction failure.
type FailureReason string

const (
	FailureMalformed          FailureReason = "malformed"
	FailureEncrypted          FailureReason = "encrypted"
	FailureUnsupportedFeature FailureReason = "unsupported-feature"
	FailureTooLarge           FailureReason = "too-large"
	FailureTimeout            FailureReason = "timeout"
	FailureDownstream         FailureReason = "downstream-error"
)

// Error is the typed error extractors return.
type Error struct {
	Reason FailureReason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a typed failure reason.
func NewError(reason FailureReason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from an error chain, defaulting
// to downstream-error for untyped failures and timeout for deadline
// expiry.
func ReasonOf(err error) FailureReason {
	var extractionErr *Error
	if errors.As(err, &extractionErr) {
		return extractionErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureDownstream
}

// Extractor converts one byte stream into an Extraction. Implementations
// enforce their own timeouts and read caps, are pure with respect to the
// input bytes, and never retain the reader after returning.
type Extractor interface {
	// Handles lists the detected MIME types this extractor accepts.
	Handles() []string
	// Info identifies the extractor and its version for cache keying.
	Info() (id string, version string)
	// Extract consumes r and produces an Extraction or a typed *Error.
	Extract(ctx context.Context, r io.Reader, sizeHint int64) (*Extraction, error)
}
