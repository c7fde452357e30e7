package extraction

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/infrastructure/workpool"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

type fakeSource struct {
	mu       sync.Mutex
	desc     FileDescriptor
	statuses []Status
	reasons  []string
}

func (f *fakeSource) Describe(ctx context.Context, id string) (*FileDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.desc
	return &d, nil
}

func (f *fakeSource) OpenBlob(ctx context.Context, id string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("payload")), nil
}

func (f *fakeSource) MarkStatus(ctx context.Context, id string, status Status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desc.Status = status
	f.desc.FailureReason = reason
	f.statuses = append(f.statuses, status)
	f.reasons = append(f.reasons, reason)
	return nil
}

type fakeExtractor struct {
	calls int32
	err   error
}

func (f *fakeExtractor) Handles() []string      { return []string{"text/plain"} }
func (f *fakeExtractor) Info() (string, string) { return "fake", "1.0" }

func (f *fakeExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*Extraction, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(r)
	return &Extraction{Kind: KindText, Text: string(data)}, nil
}

type fakeRegistry struct {
	extractor Extractor
}

func (f *fakeRegistry) ForMIME(mime string) (Extractor, bool) {
	if f.extractor == nil {
		return nil, false
	}
	return f.extractor, true
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[key] = value
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string]*Extraction
}

func (f *fakeStore) Get(contentHash, extractorID string) (*Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[contentHash+"/"+extractorID]; ok {
		clone := *v
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeStore) Put(result *Extraction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string]*Extraction)
	}
	clone := *result
	f.data[result.ContentHash+"/"+result.ExtractorID] = &clone
	return nil
}

type inlineRunner struct{}

func (inlineRunner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyRunner struct{ err error }

func (r busyRunner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.err
}

func newTestDispatcher(source *fakeSource, registry Registry, runner Runner) (*Dispatcher, *fakeStore) {
	cfg := &config.Config{CacheDefaultTTL: time.Minute}
	store := &fakeStore{}
	return NewDispatcher(cfg, source, registry, &fakeCache{}, store, runner, zerolog.Nop()), store
}

func TestDispatcherExtract(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Size: 7, Status: StatusPending,
	}}
	extractor := &fakeExtractor{}
	d, store := newTestDispatcher(source, &fakeRegistry{extractor: extractor}, inlineRunner{})

	result, err := d.Extract(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Text != "payload" {
		t.Fatalf("text = %q, want payload", result.Text)
	}
	if result.ContentHash != "abc" || result.ExtractorID != "fake" {
		t.Fatalf("result not stamped: %+v", result)
	}
	if source.desc.Status != StatusReady {
		t.Fatalf("status = %s, want ready", source.desc.Status)
	}
	if stored, _ := store.Get("abc", "fake"); stored == nil {
		t.Fatal("result not persisted")
	}
}

func TestDispatcherMemoizesByContentHash(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Size: 7, Status: StatusPending,
	}}
	extractor := &fakeExtractor{}
	d, _ := newTestDispatcher(source, &fakeRegistry{extractor: extractor}, inlineRunner{})

	for i := 0; i < 3; i++ {
		if _, err := d.Extract(context.Background(), "file-1"); err != nil {
			t.Fatalf("Extract %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("extractor ran %d times, want 1", got)
	}
}

func TestDispatcherUnsupportedMIME(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "application/x-unknown", SHA256: "abc", Status: StatusPending,
	}}
	d, _ := newTestDispatcher(source, &fakeRegistry{}, inlineRunner{})

	result, err := d.Extract(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Text != "" || result.ExtractorID != UnsupportedExtractorID {
		t.Fatalf("unexpected synthetic result: %+v", result)
	}
	if source.desc.Status != StatusUnsupported {
		t.Fatalf("status = %s, want unsupported", source.desc.Status)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning naming the MIME type")
	}
}

func TestDispatcherFailureMarksReason(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Status: StatusPending,
	}}
	extractor := &fakeExtractor{err: NewError(FailureEncrypted, errors.New("aes"))}
	d, _ := newTestDispatcher(source, &fakeRegistry{extractor: extractor}, inlineRunner{})

	_, err := d.Extract(context.Background(), "file-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if source.desc.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", source.desc.Status)
	}
	if source.desc.FailureReason != string(FailureEncrypted) {
		t.Fatalf("reason = %q, want encrypted", source.desc.FailureReason)
	}

	// A second call does not re-run a failure already seen this process.
	_, err = d.Extract(context.Background(), "file-1")
	if err == nil {
		t.Fatal("expected error on re-run")
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("extractor ran %d times, want 1", got)
	}
}

func TestDispatcherQueueFullIsServerBusy(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Status: StatusPending,
	}}
	d, _ := newTestDispatcher(source, &fakeRegistry{extractor: &fakeExtractor{}},
		busyRunner{err: workpool.ErrQueueFull})

	_, err := d.Extract(context.Background(), "file-1")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeServerBusy) {
		t.Fatalf("error = %v, want server-busy", err)
	}
}

func TestDispatcherGetExtractionNonBlocking(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Status: StatusPending,
	}}
	extractor := &fakeExtractor{}
	d, _ := newTestDispatcher(source, &fakeRegistry{extractor: extractor}, inlineRunner{})

	_, status, err := d.GetExtraction(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("GetExtraction: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("status = %s, want pending", status)
	}
	if atomic.LoadInt32(&extractor.calls) != 0 {
		t.Fatal("GetExtraction must not start a run")
	}

	if _, err := d.Extract(context.Background(), "file-1"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	result, status, err := d.GetExtraction(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("GetExtraction after run: %v", err)
	}
	if status != StatusReady || result == nil || result.Text != "payload" {
		t.Fatalf("got status=%s result=%+v", status, result)
	}
}

func TestDispatcherCoalescesConcurrentRuns(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Status: StatusPending,
	}}
	extractor := &fakeExtractor{}
	d, _ := newTestDispatcher(source, &fakeRegistry{extractor: extractor}, inlineRunner{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Extract(context.Background(), "file-1")
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("extractor ran %d times, want 1", got)
	}
}

type gatedExtractor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   int32
}

func (g *gatedExtractor) Handles() []string      { return []string{"text/plain"} }
func (g *gatedExtractor) Info() (string, string) { return "gated", "1.0" }

func (g *gatedExtractor) Extract(ctx context.Context, r io.Reader, sizeHint int64) (*Extraction, error) {
	atomic.AddInt32(&g.calls, 1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	data, _ := io.ReadAll(r)
	return &Extraction{Kind: KindText, Text: string(data)}, nil
}

func TestDispatcherCancelledCallerDoesNotPoisonRun(t *testing.T) {
	source := &fakeSource{desc: FileDescriptor{
		ID: "file-1", DetectedMIME: "text/plain", SHA256: "abc", Status: StatusPending,
	}}
	extractor := &gatedExtractor{started: make(chan struct{}), release: make(chan struct{})}
	d, _ := newTestDispatcher(source, &fakeRegistry{extractor: extractor}, inlineRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Extract(ctx, "file-1")
		firstErr <- err
	}()

	<-extractor.started
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	// The run keeps going; a later caller still gets the result.
	done := make(chan struct{})
	var result *Extraction
	var err error
	go func() {
		result, err = d.Extract(context.Background(), "file-1")
		close(done)
	}()
	close(extractor.release)
	<-done

	if err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if result.Text != "payload" {
		t.Fatalf("second caller text = %q, want payload", result.Text)
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("extractor ran %d times, want 1", got)
	}
}
