package filemeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
)

// ExtractionStore persists extractions under
// extractions/<content-hash>/<extractor-id>.json. Extractions are keyed
// by content hash, so they survive deletion of the FileRecord and are
// reused when identical bytes are uploaded again.
type ExtractionStore struct {
	basePath string
	log      zerolog.Logger
}

// NewExtractionStore roots the store next to the blob directories.
func NewExtractionStore(cfg *config.Config, log zerolog.Logger) (*ExtractionStore, error) {
	store := &ExtractionStore{
		log: log.With().Str("component", "extraction-store").Logger(),
	}

	root := strings.TrimSpace(cfg.LocalStoragePath)
	if root == "" {
		return store, nil
	}

	store.basePath = filepath.Join(root, "extractions")
	if err := os.MkdirAll(store.basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction store: %w", err)
	}
	return store, nil
}

func (s *ExtractionStore) path(contentHash, extractorID string) string {
	return filepath.Join(s.basePath, contentHash, extractorID+".json")
}

// Get loads a persisted extraction, returning nil when absent.
func (s *ExtractionStore) Get(contentHash, extractorID string) (*extraction.Extraction, error) {
	if s.basePath == "" || contentHash == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.path(contentHash, extractorID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read extraction: %w", err)
	}

	var result extraction.Extraction
	if err := json.Unmarshal(data, &result); err != nil {
		s.log.Warn().Err(err).Str("content_hash", contentHash).Msg("discarding corrupt extraction file")
		return nil, nil
	}
	return &result, nil
}

// Put persists an extraction atomically.
func (s *ExtractionStore) Put(result *extraction.Extraction) error {
	if s.basePath == "" || result == nil || result.ContentHash == "" {
		return nil
	}

	path := s.path(result.ContentHash, result.ExtractorID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write extraction: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize extraction: %w", err)
	}
	return nil
}
