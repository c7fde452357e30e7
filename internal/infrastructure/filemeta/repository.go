// Package filemeta persists FileRecord metadata as sibling meta.json
// files next to the stored blobs, with an in-memory index for reads.
package filemeta

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/utils/fileid"
)

// Repository keeps every FileRecord in memory and mirrors each change to
// a <shard>/<id>.meta.json file. Writes take the repository lock, so a
// single writer mutates any given key at a time.
type Repository struct {
	basePath string
	mu       sync.RWMutex
	records  map[string]*files.FileRecord
	log      zerolog.Logger
}

// NewRepository loads existing meta.json files under the storage root.
func NewRepository(cfg *config.Config, log zerolog.Logger) (*Repository, error) {
	repo := &Repository{
		basePath: strings.TrimSpace(cfg.LocalStoragePath),
		records:  make(map[string]*files.FileRecord),
		log:      log.With().Str("component", "filemeta").Logger(),
	}

	if repo.basePath == "" {
		return repo, nil
	}
	if err := os.MkdirAll(repo.basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata root: %w", err)
	}
	if err := repo.loadAll(); err != nil {
		return nil, err
	}

	repo.log.Info().Int("records", len(repo.records)).Msg("file metadata loaded")
	return repo, nil
}

func (r *Repository) loadAll() error {
	return filepath.WalkDir(r.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.json") {
			return err
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			r.log.Warn().Err(readErr).Str("path", path).Msg("skipping unreadable metadata file")
			return nil
		}

		var doc metaFile
		if unmarshalErr := json.Unmarshal(data, &doc); unmarshalErr != nil {
			r.log.Warn().Err(unmarshalErr).Str("path", path).Msg("skipping corrupt metadata file")
			return nil
		}
		record := doc.FileRecord
		record.Identity = doc.Identity
		record.StorageKey = doc.StorageKey
		if record.ID == "" {
			return nil
		}

		// A crashed process leaves in-progress work behind; it becomes
		// pending again and the dispatcher re-runs it.
		if record.ExtractionStatus == extraction.StatusInProgress {
			record.ExtractionStatus = extraction.StatusPending
		}

		r.records[record.ID] = &record
		return nil
	})
}

func (r *Repository) metaPath(id string) string {
	return filepath.Join(r.basePath, fileid.Shard(id), id+".meta.json")
}

// persist writes the record's meta.json atomically. Callers hold the lock.
func (r *Repository) persist(record *files.FileRecord) error {
	if r.basePath == "" {
		return nil
	}

	path := r.metaPath(record.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	doc := metaFile{
		FileRecord: *record,
		Identity:   record.Identity,
		StorageKey: record.StorageKey,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize metadata: %w", err)
	}
	return nil
}

// metaFile is the on-disk document: the public record shape plus the
// fields hidden from API responses.
type metaFile struct {
	files.FileRecord
	Identity   string `json:"identity,omitempty"`
	StorageKey string `json:"storage_key"`
}

// Create stores a new record.
func (r *Repository) Create(ctx context.Context, record *files.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("file record %s already exists", record.ID)
	}
	if err := r.persist(record); err != nil {
		return err
	}

	clone := *record
	r.records[record.ID] = &clone
	return nil
}

// GetByID returns a copy of the record, or nil when unknown.
func (r *Repository) GetByID(ctx context.Context, id string) (*files.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

// List returns the identity's records, newest first. An empty identity
// sees everything.
func (r *Repository) List(ctx context.Context, identity string) ([]*files.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*files.FileRecord
	for _, record := range r.records {
		if identity != "" && record.Identity != "" && record.Identity != identity {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

// UpdateStatus records an extraction status transition.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status extraction.Status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("file record %s not found", id)
	}

	record.ExtractionStatus = status
	record.FailureReason = reason
	return r.persist(record)
}

// Delete removes the record and its meta.json.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return nil
	}
	delete(r.records, id)

	if r.basePath == "" {
		return nil
	}
	if err := os.Remove(r.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove metadata: %w", err)
	}
	return nil
}

// Expired lists every record past its retention window.
func (r *Repository) Expired(ctx context.Context, now time.Time) ([]*files.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*files.FileRecord
	for _, record := range r.records {
		if record.Expired(now) {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
