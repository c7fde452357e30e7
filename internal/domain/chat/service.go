package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/complexity"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/domain/routing"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// FileResolver loads attached file records and their bytes.
type FileResolver interface {
	Get(ctx context.Context, id, identity string) (*files.FileRecord, error)
	Open(ctx context.Context, record *files.FileRecord) (io.ReadCloser, error)
}

// ExtractionRunner produces the extraction for one file.
type ExtractionRunner interface {
	Extract(ctx context.Context, fileID string) (*extraction.Extraction, error)
}

// Dispatcher sends woven requests upstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, route *routing.Route, req *upstream.Request) (*upstream.Result, error)
	DispatchStream(ctx context.Context, route *routing.Route, req *upstream.Request, handler upstream.ChunkHandler) (*upstream.Result, error)
	Unavailable(m chatmodel.ModelDescriptor) bool
}

// Service is the completion orchestrator.
type Service struct {
	cfg        *config.Config
	catalog    *chatmodel.Catalog
	files      FileResolver
	extractor  ExtractionRunner
	dispatcher Dispatcher
	cache      extraction.ResultCache
	log        zerolog.Logger
}

func NewService(cfg *config.Config, catalog *chatmodel.Catalog, fileResolver FileResolver, extractor ExtractionRunner, dispatcher Dispatcher, cache extraction.ResultCache, log zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		catalog:    catalog,
		files:      fileResolver,
		extractor:  extractor,
		dispatcher: dispatcher,
		cache:      cache,
		log:        log.With().Str("component", "chat-service").Logger(),
	}
}

// Prepared is a request that has been scored, routed, and woven.
type Prepared struct {
	Route          *routing.Route
	Score          complexity.Score
	Upstream       *upstream.Request
	FilesProcessed int
	FilesFailed    int
}

// Prepare resolves attachments, scores the request, routes it, and
// weaves the outbound prompt. A failed extraction degrades to a
// placeholder rather than failing the whole request.
func (s *Service) Prepare(ctx context.Context, req *Request, identity string) (*Prepared, error) {
	if err := req.Normalize(ctx, s.cfg.MaxMessageBytes); err != nil {
		return nil, err
	}

	attachments, scored, failed, err := s.resolveAttachments(ctx, req, identity)
	if err != nil {
		return nil, err
	}

	score := complexity.Compute(complexity.Input{
		Messages:    scorerMessages(req),
		Files:       scored,
		Hints:       req.CapabilityHints(),
		MaxTokens:   req.MaxTokens,
		FastWindows: s.catalog.FastWindows(),
	})

	route, err := s.route(ctx, score, req)
	if err != nil {
		return nil, err
	}

	visionCapable := route.Selected.Capabilities.Has(chatmodel.CapabilityVision)
	if visionCapable {
		s.inlineImages(ctx, attachments, identity)
	}

	woven := Weave(req, attachments, route.Selected.ContextWindow, visionCapable)
	woven.Model = route.Selected.ModelID

	return &Prepared{
		Route:          route,
		Score:          score,
		Upstream:       woven,
		FilesProcessed: len(attachments) - failed,
		FilesFailed:    failed,
	}, nil
}

// Complete dispatches the prepared request buffered.
func (s *Service) Complete(ctx context.Context, prepared *Prepared) (*upstream.Result, error) {
	return s.dispatcher.Dispatch(ctx, prepared.Route, prepared.Upstream)
}

// Stream dispatches the prepared request streaming.
func (s *Service) Stream(ctx context.Context, prepared *Prepared, handler upstream.ChunkHandler) (*upstream.Result, error) {
	return s.dispatcher.DispatchStream(ctx, prepared.Route, prepared.Upstream, handler)
}

// Snapshot exposes the availability-resolved catalog view.
func (s *Service) Snapshot() chatmodel.Snapshot {
	return s.catalog.SnapshotWith(s.dispatcher.Unavailable)
}

func (s *Service) resolveAttachments(ctx context.Context, req *Request, identity string) ([]AttachedFile, []complexity.File, int, error) {
	var attachments []AttachedFile
	var scored []complexity.File
	failed := 0

	for _, fileID := range req.FileIDs {
		if fileID == "" {
			continue
		}
		record, err := s.files.Get(ctx, fileID, identity)
		if err != nil {
			// Unknown or foreign file IDs fail the request outright.
			return nil, nil, 0, err
		}

		att := AttachedFile{Name: record.Filename, MIME: record.DetectedMIME}
		result, err := s.extractor.Extract(ctx, fileID)
		if err != nil {
			att.FailureReason = failureReason(err)
			failed++
			s.log.Warn().
				Str("file_id", fileID).
				Str("reason", att.FailureReason).
				Msg("attachment extraction failed, weaving placeholder")
		} else {
			att.Extraction = result
		}

		attachments = append(attachments, att)
		scored = append(scored, complexity.File{SizeBytes: record.Size, Extraction: att.Extraction})
	}
	return attachments, scored, failed, nil
}

// inlineImages loads the raw bytes of image attachments for
// vision-capable targets. A failed load degrades to the caption.
func (s *Service) inlineImages(ctx context.Context, attachments []AttachedFile, identity string) {
	for i := range attachments {
		att := &attachments[i]
		if att.Extraction == nil || att.Extraction.Kind != extraction.KindImageCaption {
			continue
		}
		record, err := s.files.Get(ctx, att.Extraction.FileID, identity)
		if err != nil {
			continue
		}
		blob, err := s.files.Open(ctx, record)
		if err != nil {
			s.log.Warn().Err(err).Str("file_id", record.ID).Msg("image blob unavailable, using caption")
			continue
		}
		data, err := io.ReadAll(io.LimitReader(blob, s.cfg.MaxFileBytes))
		blob.Close()
		if err != nil {
			continue
		}
		att.Image = &upstream.Image{
			MIME: att.MIME,
			Data: base64.StdEncoding.EncodeToString(data),
		}
	}
}

// route memoizes the decision by (score, preferences-hash). Generation
// output is never cached; the route is deterministic for its inputs.
func (s *Service) route(ctx context.Context, score complexity.Score, req *Request) (*routing.Route, error) {
	prefs := s.preferences(req)
	key := routing.CacheKey(score, prefs)

	if data, ok := s.cache.Get(ctx, key); ok {
		var cached routing.Route
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	snapshot := s.catalog.SnapshotWith(s.dispatcher.Unavailable)
	route, err := routing.RouteRequest(score, prefs, snapshot)
	if err != nil {
		if errors.Is(err, routing.ErrNoModelAvailable) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeServerBusy,
				"no model available for this request", err, "17d6b4a8-92c0-4ef3-8b51-6a0e3f97d245")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "routing failed")
	}

	if data, err := json.Marshal(route); err == nil {
		s.cache.Set(ctx, key, data, s.cfg.ModelsCacheTTL)
	}
	return route, nil
}

func (s *Service) preferences(req *Request) routing.Preferences {
	explicit := req.Model
	if strings.EqualFold(explicit, "auto") {
		explicit = ""
	}
	return routing.Preferences{
		PreferFast:      s.cfg.RouterPreferFast,
		PreferCheap:     s.cfg.RouterPreferCheap,
		MaxCostPer1K:    decimal.NewFromFloat(s.cfg.RouterMaxCostPer1K),
		PricingTier:     s.cfg.RouterPricingTier,
		ExplicitModelID: explicit,
	}
}

func scorerMessages(req *Request) []complexity.Message {
	out := make([]complexity.Message, len(req.Messages))
	for i, m := range req.Messages {
		out[i] = complexity.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// failureReason unwraps the typed extraction reason for the placeholder.
func failureReason(err error) string {
	var extractionErr *extraction.Error
	if errors.As(err, &extractionErr) {
		return string(extractionErr.Reason)
	}

	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		if reason, ok := platformErr.Context["reason"].(string); ok {
			return reason
		}
		return string(platformErr.Type)
	}
	return string(extraction.FailureDownstream)
}

// Analysis is the complexity inspection result, no upstream call made.
type Analysis struct {
	ComplexityScore int                `json:"complexity_score"`
	SelectedModel   string             `json:"selected_model"`
	Reasoning       AnalysisReasoning  `json:"reasoning"`
	Capabilities    []string           `json:"required_capabilities"`
	Tags            []string           `json:"rationale_tags,omitempty"`
	Route           *routing.Route     `json:"route_preview,omitempty"`
	Factors         complexity.Factors `json:"-"`
}

// AnalysisReasoning mirrors the inspection fields clients rely on.
type AnalysisReasoning struct {
	TotalMessageLength   int                `json:"total_message_length"`
	FileCount            int                `json:"file_count"`
	FileTypes            []string           `json:"file_types"`
	TotalFileSize        int64              `json:"total_file_size"`
	HasMultimodalContent bool               `json:"has_multimodal_content"`
	ComplexityFactors    complexity.Factors `json:"complexity_factors"`
}

// Analyze runs the scorer and router for inspection without dispatching.
func (s *Service) Analyze(ctx context.Context, req *Request, identity string) (*Analysis, error) {
	if err := req.Normalize(ctx, s.cfg.MaxMessageBytes); err != nil {
		return nil, err
	}

	_, scored, _, err := s.resolveAttachments(ctx, req, identity)
	if err != nil {
		return nil, err
	}

	score := complexity.Compute(complexity.Input{
		Messages:    scorerMessages(req),
		Files:       scored,
		Hints:       req.CapabilityHints(),
		MaxTokens:   req.MaxTokens,
		FastWindows: s.catalog.FastWindows(),
	})

	messageLength := 0
	for _, m := range req.Messages {
		messageLength += len(m.Content)
	}
	var fileTypes []string
	var totalFileSize int64
	multimodal := false
	seen := map[string]bool{}
	for _, f := range scored {
		totalFileSize += f.SizeBytes
		if f.Extraction == nil {
			continue
		}
		kind := string(f.Extraction.Kind)
		if !seen[kind] {
			seen[kind] = true
			fileTypes = append(fileTypes, kind)
		}
		if f.Extraction.Kind == extraction.KindImageCaption || f.Extraction.Kind == extraction.KindTranscript {
			multimodal = true
		}
	}

	analysis := &Analysis{
		ComplexityScore: score.Value,
		Reasoning: AnalysisReasoning{
			TotalMessageLength:   messageLength,
			FileCount:            len(scored),
			FileTypes:            fileTypes,
			TotalFileSize:        totalFileSize,
			HasMultimodalContent: multimodal,
			ComplexityFactors:    score.Factors,
		},
		Capabilities: score.Required.Strings(),
		Tags:         score.Tags,
		Factors:      score.Factors,
	}

	route, err := s.route(ctx, score, req)
	if err == nil {
		analysis.SelectedModel = route.Selected.ModelID
		analysis.Route = route
		analysis.Tags = append(analysis.Tags, route.Tags...)
	}
	return analysis, nil
}
