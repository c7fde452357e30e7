package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/domain/routing"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
)

type fakeFiles struct {
	records map[string]*files.FileRecord
}

func (f *fakeFiles) Get(ctx context.Context, id, identity string) (*files.FileRecord, error) {
	if r, ok := f.records[id]; ok {
		return r, nil
	}
	return nil, errors.New("file not found")
}

func (f *fakeFiles) Open(ctx context.Context, record *files.FileRecord) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("imagebytes")), nil
}

type fakeExtractor struct {
	results map[string]*extraction.Extraction
	errs    map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, fileID string) (*extraction.Extraction, error) {
	if err, ok := f.errs[fileID]; ok {
		return nil, err
	}
	return f.results[fileID], nil
}

type fakeDispatcher struct {
	result *upstream.Result
	err    error
	chunks []upstream.Chunk
	gotReq *upstream.Request
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, route *routing.Route, req *upstream.Request) (*upstream.Result, error) {
	f.gotReq = req
	return f.result, f.err
}

func (f *fakeDispatcher) DispatchStream(ctx context.Context, route *routing.Route, req *upstream.Request, handler upstream.ChunkHandler) (*upstream.Result, error) {
	f.gotReq = req
	for _, c := range f.chunks {
		if err := handler(c); err != nil {
			return f.result, err
		}
	}
	return f.result, f.err
}

func (f *fakeDispatcher) Unavailable(m chatmodel.ModelDescriptor) bool { return false }

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
}

func testCatalog() *chatmodel.Catalog {
	return chatmodel.FromBootstrap(config.DefaultBootstrapConfig())
}

func testService(filesvc *fakeFiles, extractor *fakeExtractor, dispatcher *fakeDispatcher) *Service {
	cfg := &config.Config{
		MaxMessageBytes:   1 << 20,
		MaxFileBytes:      10 << 20,
		RouterPricingTier: "auto",
		ModelsCacheTTL:    30 * time.Second,
	}
	return NewService(cfg, testCatalog(), filesvc, extractor, dispatcher, &mapCache{}, zerolog.Nop())
}

func TestPrepareSimpleRequest(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc := testService(&fakeFiles{}, &fakeExtractor{}, dispatcher)

	prepared, err := svc.Prepare(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "Hello!"}},
	}, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prepared.Score.Value > 10 {
		t.Fatalf("score = %d, want a simple-request score", prepared.Score.Value)
	}
	if prepared.Route.Selected.SpeedTier != chatmodel.SpeedTierFast {
		t.Fatalf("selected tier = %s, want fast", prepared.Route.Selected.SpeedTier)
	}
	if prepared.Upstream.Model != prepared.Route.Selected.ModelID {
		t.Fatalf("woven model %q != routed model %q", prepared.Upstream.Model, prepared.Route.Selected.ModelID)
	}
}

func TestPrepareWeavesAttachment(t *testing.T) {
	filesvc := &fakeFiles{records: map[string]*files.FileRecord{
		"f1": {ID: "f1", Filename: "notes.txt", DetectedMIME: "text/plain", Size: 64},
	}}
	extractor := &fakeExtractor{results: map[string]*extraction.Extraction{
		"f1": {FileID: "f1", Kind: extraction.KindText, Text: "the meeting moved to friday"},
	}}
	svc := testService(filesvc, extractor, &fakeDispatcher{})

	prepared, err := svc.Prepare(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "when is the meeting?"}},
		FileIDs:  []string{"f1"},
	}, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prepared.FilesProcessed != 1 {
		t.Fatalf("files processed = %d, want 1", prepared.FilesProcessed)
	}
	if !strings.Contains(prepared.Upstream.System, "the meeting moved to friday") {
		t.Fatalf("attachment not woven: %q", prepared.Upstream.System)
	}
}

func TestPrepareFailedExtractionDegrades(t *testing.T) {
	filesvc := &fakeFiles{records: map[string]*files.FileRecord{
		"f1": {ID: "f1", Filename: "locked.pdf", DetectedMIME: "application/pdf", Size: 64},
	}}
	extractor := &fakeExtractor{errs: map[string]error{
		"f1": extraction.NewError(extraction.FailureEncrypted, errors.New("aes")),
	}}
	svc := testService(filesvc, extractor, &fakeDispatcher{})

	prepared, err := svc.Prepare(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "read the file"}},
		FileIDs:  []string{"f1"},
	}, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prepared.FilesFailed != 1 {
		t.Fatalf("files failed = %d, want 1", prepared.FilesFailed)
	}
	if !strings.Contains(prepared.Upstream.System, "extraction failed: encrypted") {
		t.Fatalf("placeholder missing: %q", prepared.Upstream.System)
	}
}

func TestPrepareUnknownFileFails(t *testing.T) {
	svc := testService(&fakeFiles{}, &fakeExtractor{}, &fakeDispatcher{})

	_, err := svc.Prepare(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		FileIDs:  []string{"missing"},
	}, "")
	if err == nil {
		t.Fatal("expected error for unknown file ID")
	}
}

func TestPrepareRejectsInvalidRole(t *testing.T) {
	svc := testService(&fakeFiles{}, &fakeExtractor{}, &fakeDispatcher{})

	_, err := svc.Prepare(context.Background(), &Request{
		Messages: []Message{{Role: "wizard", Content: "hi"}},
	}, "")
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAnalyzeReturnsReasoning(t *testing.T) {
	filesvc := &fakeFiles{records: map[string]*files.FileRecord{
		"f1": {ID: "f1", Filename: "chart.png", DetectedMIME: "image/png", Size: 2048},
	}}
	extractor := &fakeExtractor{results: map[string]*extraction.Extraction{
		"f1": {FileID: "f1", Kind: extraction.KindImageCaption, Text: "png image, 640x480 pixels"},
	}}
	svc := testService(filesvc, extractor, &fakeDispatcher{})

	analysis, err := svc.Analyze(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "describe the chart"}},
		FileIDs:  []string{"f1"},
	}, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Reasoning.FileCount != 1 {
		t.Fatalf("file count = %d, want 1", analysis.Reasoning.FileCount)
	}
	if !analysis.Reasoning.HasMultimodalContent {
		t.Fatal("image attachment should mark multimodal content")
	}
	if analysis.SelectedModel == "" {
		t.Fatal("analysis missing selected model")
	}
	found := false
	for _, c := range analysis.Capabilities {
		if c == string(chatmodel.CapabilityVision) {
			found = true
		}
	}
	if !found {
		t.Fatalf("vision missing from required capabilities: %v", analysis.Capabilities)
	}
}

func TestStreamRelaysChunks(t *testing.T) {
	dispatcher := &fakeDispatcher{
		result: &upstream.Result{Provider: "openai", Model: "gpt-4o-mini"},
		chunks: []upstream.Chunk{
			{Kind: upstream.ChunkDeltaContent, Content: "Hel"},
			{Kind: upstream.ChunkDeltaContent, Content: "lo"},
			{Kind: upstream.ChunkFinish, FinishReason: "stop", Terminal: true},
		},
	}
	svc := testService(&fakeFiles{}, &fakeExtractor{}, dispatcher)

	prepared, err := svc.Prepare(context.Background(), &Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Stream:   true,
	}, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	var content strings.Builder
	result, err := svc.Stream(context.Background(), prepared, func(chunk upstream.Chunk) error {
		content.WriteString(chunk.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if content.String() != "Hello" {
		t.Fatalf("content = %q, want Hello", content.String())
	}
	if result.Provider != "openai" {
		t.Fatalf("provider = %q", result.Provider)
	}
}
