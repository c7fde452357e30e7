package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/infrastructure/workpool"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// UnsupportedExtractorID labels the synthetic extraction produced when
// no registered extractor handles the detected MIME type.
const UnsupportedExtractorID = "unsupported"

// FileDescriptor is the dispatcher's view of one uploaded file.
type FileDescriptor struct {
	ID            string
	Filename      string
	DetectedMIME  string
	SHA256        string
	Size          int64
	Status        Status
	FailureReason string
}

// FileSource resolves file metadata and bytes for extraction runs.
type FileSource interface {
	Describe(ctx context.Context, id string) (*FileDescriptor, error)
	OpenBlob(ctx context.Context, id string) (io.ReadCloser, error)
	MarkStatus(ctx context.Context, id string, status Status, reason string) error
}

// Registry resolves a detected MIME type to its extractor.
type Registry interface {
	ForMIME(mime string) (Extractor, bool)
}

// ResultCache memoizes extraction results across requests.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// ResultStore persists extractions keyed by content hash.
type ResultStore interface {
	Get(contentHash, extractorID string) (*Extraction, error)
	Put(result *Extraction) error
}

// Runner executes CPU-bound work on the bounded pool.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Dispatcher owns the extraction lifecycle: it coalesces concurrent
// runs per file, memoizes results by content hash, and records status
// transitions on the FileRecord.
type Dispatcher struct {
	cfg      *config.Config
	files    FileSource
	registry Registry
	cache    ResultCache
	store    ResultStore
	pool     Runner
	log      zerolog.Logger

	group singleflight.Group

	// failed extraction attempts are not repeated within one process.
	mu        sync.Mutex
	attempted map[string]bool
}

func NewDispatcher(cfg *config.Config, files FileSource, registry Registry, cache ResultCache, store ResultStore, pool Runner, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		files:     files,
		registry:  registry,
		cache:     cache,
		store:     store,
		pool:      pool,
		log:       log.With().Str("component", "extraction-dispatcher").Logger(),
		attempted: make(map[string]bool),
	}
}

func cacheKey(contentHash, extractorID, version string) string {
	return fmt.Sprintf("extraction:%s:%s:%s", contentHash, extractorID, version)
}

// Extract produces the file's extraction, computing it at most once per
// content hash. Concurrent calls for the same file share one run.
func (d *Dispatcher) Extract(ctx context.Context, fileID string) (*Extraction, error) {
	desc, err := d.files.Describe(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// The flight outlives any one caller: a cancelled request must not
	// poison the shared run for the callers coalesced onto it. The
	// extractor timeouts still bound the work.
	flightCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(fileID, func() (interface{}, error) {
		return d.extractOnce(flightCtx, desc)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Extraction), nil
	}
}

func (d *Dispatcher) extractOnce(ctx context.Context, desc *FileDescriptor) (*Extraction, error) {
	extractor, ok := d.registry.ForMIME(desc.DetectedMIME)
	if !ok {
		return d.unsupported(ctx, desc)
	}
	extractorID, version := extractor.Info()

	// Memoized result: disk store first, then the cache tier.
	if cached := d.lookup(ctx, desc, extractorID, version); cached != nil {
		if desc.Status != StatusReady {
			_ = d.files.MarkStatus(ctx, desc.ID, StatusReady, "")
		}
		return cached, nil
	}

	if desc.Status == StatusFailed && d.wasAttempted(desc.ID) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"extraction already failed for this file", nil, "0f4a9c31-68de-45b2-8a07-d91c3e52b6f8")
	}

	if err := d.files.MarkStatus(ctx, desc.ID, StatusInProgress, ""); err != nil {
		return nil, err
	}
	d.markAttempted(desc.ID)

	started := time.Now()
	result, err := d.run(ctx, desc, extractor)
	elapsed := time.Since(started)

	if err != nil {
		reason := ReasonOf(err)
		_ = d.files.MarkStatus(ctx, desc.ID, StatusFailed, string(reason))
		metrics.RecordExtraction(extractorID, "failed", elapsed.Seconds())
		d.log.Warn().
			Err(err).
			Str("file_id", desc.ID).
			Str("extractor", extractorID).
			Str("reason", string(reason)).
			Msg("extraction failed")
		return nil, d.typedError(ctx, reason, err)
	}

	result.FileID = desc.ID
	result.ContentHash = desc.SHA256
	result.ExtractorID = extractorID
	result.ExtractorVersion = version
	result.ElapsedMS = elapsed.Milliseconds()
	result.CreatedAt = time.Now().UTC()

	if err := d.store.Put(result); err != nil {
		d.log.Warn().Err(err).Str("file_id", desc.ID).Msg("persisting extraction failed")
	}
	if data, err := json.Marshal(result); err == nil {
		d.cache.Set(ctx, cacheKey(desc.SHA256, extractorID, version), data, d.cfg.CacheDefaultTTL)
	}

	if err := d.files.MarkStatus(ctx, desc.ID, StatusReady, ""); err != nil {
		return nil, err
	}
	metrics.RecordExtraction(extractorID, "success", elapsed.Seconds())

	d.log.Info().
		Str("file_id", desc.ID).
		Str("extractor", extractorID).
		Int("text_bytes", len(result.Text)).
		Dur("elapsed", elapsed).
		Msg("extraction ready")

	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, desc *FileDescriptor, extractor Extractor) (*Extraction, error) {
	blob, err := d.files.OpenBlob(ctx, desc.ID)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	var result *Extraction
	poolErr := d.pool.Run(ctx, func(ctx context.Context) error {
		var extractErr error
		result, extractErr = extractor.Extract(ctx, blob, desc.Size)
		return extractErr
	})
	if poolErr != nil {
		if errors.Is(poolErr, workpool.ErrQueueFull) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeServerBusy,
				"extraction queue is full", poolErr, "7b2e8d15-93fa-4c60-b1d4-5a8f02c7e936")
		}
		return nil, poolErr
	}
	return result, nil
}

// lookup returns a memoized extraction from the store or cache tier.
func (d *Dispatcher) lookup(ctx context.Context, desc *FileDescriptor, extractorID, version string) *Extraction {
	if stored, err := d.store.Get(desc.SHA256, extractorID); err == nil && stored != nil {
		if stored.ExtractorVersion == version {
			stored.FileID = desc.ID
			return stored
		}
	}

	data, ok := d.cache.Get(ctx, cacheKey(desc.SHA256, extractorID, version))
	if !ok {
		return nil
	}
	var cached Extraction
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	cached.FileID = desc.ID
	return &cached
}

// unsupported records the synthetic empty extraction for files no
// extractor handles.
func (d *Dispatcher) unsupported(ctx context.Context, desc *FileDescriptor) (*Extraction, error) {
	result := &Extraction{
		FileID:           desc.ID,
		ContentHash:      desc.SHA256,
		Kind:             KindText,
		Text:             "",
		ExtractorID:      UnsupportedExtractorID,
		ExtractorVersion: "0",
		CreatedAt:        time.Now().UTC(),
		Warnings:         []string{fmt.Sprintf("no extractor registered for %s", desc.DetectedMIME)},
	}

	if err := d.files.MarkStatus(ctx, desc.ID, StatusUnsupported, ""); err != nil {
		return nil, err
	}
	if err := d.store.Put(result); err != nil {
		d.log.Warn().Err(err).Str("file_id", desc.ID).Msg("persisting unsupported extraction failed")
	}

	d.log.Info().
		Str("file_id", desc.ID).
		Str("detected_mime", desc.DetectedMIME).
		Msg("no extractor for file type")

	return result, nil
}

// GetExtraction is the non-blocking read: it never starts a run.
func (d *Dispatcher) GetExtraction(ctx context.Context, fileID string) (*Extraction, Status, error) {
	desc, err := d.files.Describe(ctx, fileID)
	if err != nil {
		return nil, "", err
	}

	switch desc.Status {
	case StatusReady, StatusUnsupported:
		extractorID := UnsupportedExtractorID
		version := "0"
		if extractor, ok := d.registry.ForMIME(desc.DetectedMIME); ok {
			extractorID, version = extractor.Info()
		}
		if result := d.lookup(ctx, desc, extractorID, version); result != nil {
			return result, desc.Status, nil
		}
		// Metadata says ready but the result is gone; surface pending so
		// the caller forces a re-run.
		return nil, StatusPending, nil
	default:
		return nil, desc.Status, nil
	}
}

func (d *Dispatcher) wasAttempted(fileID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempted[fileID]
}

func (d *Dispatcher) markAttempted(fileID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempted[fileID] = true
}

func (d *Dispatcher) typedError(ctx context.Context, reason FailureReason, err error) error {
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		return err
	}

	errorType := platformerrors.ErrorTypeInternal
	switch reason {
	case FailureTooLarge:
		errorType = platformerrors.ErrorTypePayloadTooLarge
	case FailureMalformed, FailureEncrypted, FailureUnsupportedFeature:
		errorType = platformerrors.ErrorTypeValidation
	case FailureTimeout:
		errorType = platformerrors.ErrorTypeUpstreamTimeout
	case FailureDownstream:
		errorType = platformerrors.ErrorTypeUpstream
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, errorType,
		"extraction failed", err, "c8d1f720-45e3-4b9a-8126-f30a7d59e8b4",
		map[string]any{"reason": string(reason)})
}
