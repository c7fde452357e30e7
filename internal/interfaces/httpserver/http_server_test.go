package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chat"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/domain/routing"
	"github.com/campersurfer/Autopicker/internal/infrastructure/blobstore"
	"github.com/campersurfer/Autopicker/internal/infrastructure/cache"
	"github.com/campersurfer/Autopicker/internal/infrastructure/extractors"
	"github.com/campersurfer/Autopicker/internal/infrastructure/filemeta"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/infrastructure/transcribe"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/infrastructure/workpool"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/handlers"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

// fakeUpstream answers every dispatch with a fixed completion so the
// tests exercise the HTTP surface without network.
type fakeUpstream struct{}

func (f *fakeUpstream) result(route *routing.Route) *upstream.Result {
	return &upstream.Result{
		Provider:    route.Selected.ProviderID,
		Model:       route.Selected.ModelID,
		Attempts:    1,
		FirstByteMS: 3,
		Completion: &upstream.Completion{
			Content:      "Hello world",
			FinishReason: "stop",
			Usage:        upstream.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
		},
	}
}

func (f *fakeUpstream) Dispatch(_ context.Context, route *routing.Route, _ *upstream.Request) (*upstream.Result, error) {
	return f.result(route), nil
}

func (f *fakeUpstream) DispatchStream(_ context.Context, route *routing.Route, _ *upstream.Request, handler upstream.ChunkHandler) (*upstream.Result, error) {
	for _, chunk := range []upstream.Chunk{
		{Kind: upstream.ChunkDeltaContent, Content: "Hello"},
		{Kind: upstream.ChunkDeltaContent, Content: " world"},
		{Kind: upstream.ChunkFinish, FinishReason: "stop", Terminal: true},
	} {
		if err := handler(chunk); err != nil {
			return nil, err
		}
	}
	return f.result(route), nil
}

func (f *fakeUpstream) Unavailable(chatmodel.ModelDescriptor) bool { return false }

func serverConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ShutdownTimeout:         time.Second,
		APIKeyHeader:            "X-API-Key",
		MaxFileBytes:            10 << 20,
		MaxMessageBytes:         1 << 20,
		AllowedMIMETypes:        config.DefaultAllowedMIMETypes,
		ExtractionTextCap:       1 << 20,
		ExtractionTimeout:       10 * time.Second,
		ExtractionWorkers:       2,
		ExtractionQueueSize:     8,
		FileRetention:           time.Hour,
		BlobStore:               "local",
		LocalStoragePath:        t.TempDir(),
		RateLimitCapacity:       1000,
		RateLimitWindow:         time.Minute,
		UploadRateLimitCapacity: 1000,
		CacheLocalBytes:         1 << 20,
		CacheDefaultTTL:         time.Minute,
		RouterPricingTier:       "auto",
		ModelsCacheTTL:          30 * time.Second,
		Bootstrap:               config.DefaultBootstrapConfig(),
		ServiceName:             "autopicker-test",
		Environment:             "test",
	}
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := serverConfig(t)
	log := zerolog.Nop()

	storage, err := blobstore.NewLocalStorage(cfg, log)
	require.NoError(t, err)
	repo, err := filemeta.NewRepository(cfg, log)
	require.NoError(t, err)
	store, err := filemeta.NewExtractionStore(cfg, log)
	require.NoError(t, err)
	local, err := cache.NewLocalCache(cfg.CacheLocalBytes, cfg.CacheDefaultTTL)
	require.NoError(t, err)
	tiered := cache.NewTieredCache(local, nil)

	fileService := files.NewService(cfg, repo, storage, log)
	registry := extractors.NewRegistry(cfg, transcribe.NewClient(cfg, log), log)
	workers := workpool.New(cfg.ExtractionWorkers, cfg.ExtractionQueueSize, log)
	t.Cleanup(workers.Shutdown)
	extractor := extraction.NewDispatcher(cfg, fileService, registry, tiered, store, workers, log)

	catalog := chatmodel.FromBootstrap(cfg.Bootstrap)
	chatService := chat.NewService(cfg, catalog, fileService, extractor, &fakeUpstream{}, tiered, log)

	limiter := middlewares.NewLimiter(cfg)
	provider := handlers.NewProvider(cfg, chatService, fileService, extractor,
		upstream.NewProber(cfg, log), limiter, metrics.NewPerfCollector(), tiered, log)

	return New(cfg, log, provider, limiter).Engine()
}

func postJSON(engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	engine := newTestServer(t)

	for _, path := range []string{"/", "/health", "/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	engine := newTestServer(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestCompletionRejectsEmptyMessages(t *testing.T) {
	engine := newTestServer(t)

	w := postJSON(engine, "/api/v1/chat/completions", gin.H{"messages": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		StatusCode int `json:"status_code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, http.StatusBadRequest, envelope.StatusCode)
	assert.NotEmpty(t, envelope.Error.Code)
}

func TestCompletionBuffered(t *testing.T) {
	engine := newTestServer(t)

	w := postJSON(engine, "/api/v1/chat/completions", gin.H{
		"messages": []gin.H{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		FilesProcessed *int `json:"files_processed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "chat.completion", response.Object)
	require.Len(t, response.Choices, 1)
	assert.Equal(t, "Hello world", response.Choices[0].Message.Content)
	assert.Equal(t, "stop", response.Choices[0].FinishReason)
	assert.Nil(t, response.FilesProcessed)
	assert.NotEmpty(t, response.Model)
}

func TestCompletionStreamMatchesBuffered(t *testing.T) {
	engine := newTestServer(t)

	w := postJSON(engine, "/api/v1/chat/completions", gin.H{
		"messages": []gin.H{{"role": "user", "content": "hi"}},
		"stream":   true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	var content strings.Builder
	sawDone := false
	for _, line := range strings.Split(w.Body.String(), "\n") {
		payload, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		var chunk struct {
			Object  string `json:"object"`
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
		}
	}

	assert.True(t, sawDone, "stream must end with [DONE]")
	assert.Equal(t, "Hello world", content.String())
}

func TestAnalyzeComplexityShape(t *testing.T) {
	engine := newTestServer(t)

	w := postJSON(engine, "/api/v1/analyze-complexity", gin.H{
		"messages": []gin.H{{"role": "user", "content": "write a haiku"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var analysis struct {
		ComplexityScore int    `json:"complexity_score"`
		SelectedModel   string `json:"selected_model"`
		Reasoning       struct {
			TotalMessageLength int `json:"total_message_length"`
		} `json:"reasoning"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.GreaterOrEqual(t, analysis.ComplexityScore, 0)
	assert.LessOrEqual(t, analysis.ComplexityScore, 100)
	assert.NotEmpty(t, analysis.SelectedModel)
	assert.Equal(t, len("write a haiku"), analysis.Reasoning.TotalMessageLength)
}

func TestModelsListCachedWithRateHeaders(t *testing.T) {
	engine := newTestServer(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))

	var list struct {
		Object string `json:"object"`
		Data   []struct {
			ID        string `json:"id"`
			Available bool   `json:"available"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	assert.NotEmpty(t, list.Data)
}

func uploadFile(t *testing.T, engine *gin.Engine, name, contentType, content string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var record map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	return record
}

func TestFileLifecycle(t *testing.T) {
	engine := newTestServer(t)

	record := uploadFile(t, engine, "notes.txt", "text/plain", "the quarterly report is due friday")
	fileID, _ := record["id"].(string)
	require.NotEmpty(t, fileID)

	// Explicit extraction is idempotent and returns the text.
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/files/"+fileID+"/extract", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var extracted struct {
		Text string `json:"text"`
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &extracted))
	assert.Contains(t, extracted.Text, "quarterly report")

	// Metadata now reports the ready extraction.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		ExtractionStatus string          `json:"extraction_status"`
		Extraction       json.RawMessage `json:"extraction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "ready", view.ExtractionStatus)
	assert.NotEmpty(t, view.Extraction)

	// Listing includes the file.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)

	// Delete round-trip ends in 404.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/files/"+fileID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompletionWithAttachment(t *testing.T) {
	engine := newTestServer(t)

	record := uploadFile(t, engine, "notes.txt", "text/plain", "project codename is bluebird")
	fileID, _ := record["id"].(string)

	w := postJSON(engine, "/api/v1/chat/multimodal", gin.H{
		"messages": []gin.H{{"role": "user", "content": "summarize the attachment"}},
		"file_ids": []string{fileID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		FilesProcessed *int `json:"files_processed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotNil(t, response.FilesProcessed)
	assert.Equal(t, 1, *response.FilesProcessed)
}

func TestMultimodalRequiresFileIDs(t *testing.T) {
	engine := newTestServer(t)

	w := postJSON(engine, "/api/v1/chat/multimodal", gin.H{
		"messages": []gin.H{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMonitoringEndpoints(t *testing.T) {
	engine := newTestServer(t)

	for _, path := range []string{
		"/api/v1/monitoring/health",
		"/api/v1/monitoring/alerts",
		"/api/v1/monitoring/rate-limits",
		"/api/v1/performance/metrics",
	} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestUnsupportedContentTypeRejected(t *testing.T) {
	engine := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/completions", strings.NewReader("messages=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestAPIKeyEnforcedWhenConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := serverConfig(t)
	cfg.APIKey = "secret-key"
	log := zerolog.Nop()

	storage, err := blobstore.NewLocalStorage(cfg, log)
	require.NoError(t, err)
	repo, err := filemeta.NewRepository(cfg, log)
	require.NoError(t, err)
	store, err := filemeta.NewExtractionStore(cfg, log)
	require.NoError(t, err)
	local, err := cache.NewLocalCache(cfg.CacheLocalBytes, cfg.CacheDefaultTTL)
	require.NoError(t, err)
	tiered := cache.NewTieredCache(local, nil)

	fileService := files.NewService(cfg, repo, storage, log)
	registry := extractors.NewRegistry(cfg, transcribe.NewClient(cfg, log), log)
	workers := workpool.New(1, 4, log)
	t.Cleanup(workers.Shutdown)
	extractor := extraction.NewDispatcher(cfg, fileService, registry, tiered, store, workers, log)
	chatService := chat.NewService(cfg, chatmodel.FromBootstrap(cfg.Bootstrap), fileService, extractor, &fakeUpstream{}, tiered, log)

	limiter := middlewares.NewLimiter(cfg)
	provider := handlers.NewProvider(cfg, chatService, fileService, extractor,
		upstream.NewProber(cfg, log), limiter, metrics.NewPerfCollector(), tiered, log)
	engine := New(cfg, log, provider, limiter).Engine()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Liveness stays open without a key.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
