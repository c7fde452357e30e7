package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chat"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/requests"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/responses"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// CompletionMessage is the assistant message in a buffered response.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionChoice is one choice in a buffered response.
type CompletionChoice struct {
	Index        int               `json:"index"`
	Message      CompletionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// CompletionResponse is the OpenAI-compatible buffered response, with
// files_processed added when attachments were woven.
type CompletionResponse struct {
	ID             string             `json:"id"`
	Object         string             `json:"object"`
	Created        int64              `json:"created"`
	Model          string             `json:"model"`
	Choices        []CompletionChoice `json:"choices"`
	Usage          upstream.Usage     `json:"usage"`
	FilesProcessed *int               `json:"files_processed,omitempty"`
}

// ChatHandler serves completions, the multimodal alias, and the
// complexity inspection endpoint.
type ChatHandler struct {
	cfg  *config.Config
	svc  *chat.Service
	perf *metrics.PerfCollector
	log  zerolog.Logger
}

func NewChatHandler(cfg *config.Config, svc *chat.Service, perf *metrics.PerfCollector, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{cfg: cfg, svc: svc, perf: perf, log: log.With().Str("handler", "chat").Logger()}
}

// Completions godoc
// @Summary OpenAI-compatible chat completion, streamed or buffered
// @Tags chat
// @Accept json
// @Produce json
// @Param request body requests.ChatCompletionRequest true "completion request"
// @Success 200 {object} CompletionResponse
// @Failure 400 {object} responses.ErrorResponse
// @Failure 503 {object} responses.ErrorResponse
// @Router /api/v1/chat/completions [post]
func (h *ChatHandler) Completions(c *gin.Context) {
	h.complete(c, false)
}

// Multimodal godoc
// @Summary Chat completion with required file attachments
// @Tags chat
// @Accept json
// @Produce json
// @Param request body requests.ChatCompletionRequest true "completion request with file_ids"
// @Success 200 {object} CompletionResponse
// @Failure 400 {object} responses.ErrorResponse
// @Router /api/v1/chat/multimodal [post]
func (h *ChatHandler) Multimodal(c *gin.Context) {
	h.complete(c, true)
}

func (h *ChatHandler) complete(c *gin.Context, requireFiles bool) {
	var dto requests.ChatCompletionRequest
	if err := c.ShouldBindJSON(&dto); err != nil {
		responses.HandleNewError(c, platformerrors.NewError(
			c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeValidation,
			"invalid completion request: "+err.Error(), err, "aa3c92f1-58e7-4d04-b6c2-90de417f85b3"))
		return
	}
	if requireFiles && len(dto.FileIDs) == 0 {
		responses.HandleNewError(c, platformerrors.NewError(
			c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeValidation,
			"multimodal requests need at least one file id", nil, "d21b6e09-4fa3-4c78-a5d1-37c80f962e15"))
		return
	}

	req := dto.ToDomain()
	start := time.Now()
	c.Set(middlewares.CtxStream, req.Stream)

	prepared, err := h.svc.Prepare(c.Request.Context(), req, middlewares.Identity(c))
	if err != nil {
		h.perf.Observe(opName(req.Stream), time.Since(start), false)
		responses.HandleError(c, err)
		return
	}

	c.Set(middlewares.CtxSelectedModel, prepared.Route.Selected.ModelID)
	c.Set(middlewares.CtxComplexityScore, prepared.Score.Value)
	c.Set(middlewares.CtxRationaleTags, append(append([]string{}, prepared.Score.Tags...), prepared.Route.Tags...))

	if req.Stream {
		h.stream(c, prepared, start)
		return
	}

	result, err := h.svc.Complete(c.Request.Context(), prepared)
	if err != nil {
		h.perf.Observe(opName(false), time.Since(start), false)
		responses.HandleError(c, err)
		return
	}

	c.Set(middlewares.CtxUpstreamLatencyMS, result.FirstByteMS)
	c.Set(middlewares.CtxFallbackCount, result.FallbackCount)

	response := CompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   result.Model,
		Choices: []CompletionChoice{{
			Index:        0,
			Message:      CompletionMessage{Role: "assistant", Content: result.Completion.Content},
			FinishReason: result.Completion.FinishReason,
		}},
		Usage: result.Completion.Usage,
	}
	if len(req.FileIDs) > 0 {
		processed := prepared.FilesProcessed
		response.FilesProcessed = &processed
	}

	h.perf.Observe(opName(false), time.Since(start), true)
	c.JSON(http.StatusOK, response)
}

// stream relays upstream chunks as SSE frames. The writer is created
// lazily on the first chunk so dispatch failures before any delivery
// still produce a plain JSON error.
func (h *ChatHandler) stream(c *gin.Context, prepared *chat.Prepared, start time.Time) {
	completionID := "chatcmpl-" + uuid.NewString()
	model := prepared.Route.Selected.ModelID

	var writer *responses.SSEWriter
	finished := false

	result, err := h.svc.Stream(c.Request.Context(), prepared, func(chunk upstream.Chunk) error {
		if writer == nil {
			w, werr := responses.NewSSEWriter(c, completionID, model)
			if werr != nil {
				return werr
			}
			writer = w
		}
		switch chunk.Kind {
		case upstream.ChunkDeltaContent:
			return writer.WriteContent(chunk.Content)
		case upstream.ChunkDeltaToolCall:
			return writer.WriteToolCall(chunk.ToolCallJSON)
		case upstream.ChunkFinish:
			if finished {
				return nil
			}
			finished = true
			return writer.WriteFinish(chunk.FinishReason)
		}
		return nil
	})

	if err != nil {
		h.perf.Observe(opName(true), time.Since(start), false)
		if writer == nil {
			responses.HandleError(c, err)
			return
		}
		// Bytes already reached the client; finish the stream with an
		// in-band error frame.
		code, message := streamErrorBody(err)
		c.Set(middlewares.CtxErrorCode, code)
		if werr := writer.WriteError(code, message); werr != nil {
			h.log.Debug().Err(werr).Msg("error frame write failed")
		}
		_ = writer.Close()
		return
	}

	if writer == nil {
		// Upstream finished without emitting anything.
		w, werr := responses.NewSSEWriter(c, completionID, model)
		if werr != nil {
			responses.HandleError(c, werr)
			return
		}
		writer = w
	}
	if !finished {
		_ = writer.WriteFinish("stop")
	}
	_ = writer.Close()

	c.Set(middlewares.CtxUpstreamLatencyMS, result.FirstByteMS)
	c.Set(middlewares.CtxFallbackCount, result.FallbackCount)
	h.perf.Observe(opName(true), time.Since(start), true)
}

// Analyze godoc
// @Summary Score and route a request without calling any provider
// @Tags chat
// @Accept json
// @Produce json
// @Param request body requests.ChatCompletionRequest true "request to inspect"
// @Success 200 {object} chat.Analysis
// @Failure 400 {object} responses.ErrorResponse
// @Router /api/v1/analyze-complexity [post]
func (h *ChatHandler) Analyze(c *gin.Context) {
	var dto requests.ChatCompletionRequest
	if err := c.ShouldBindJSON(&dto); err != nil {
		responses.HandleNewError(c, platformerrors.NewError(
			c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeValidation,
			"invalid analyze request: "+err.Error(), err, "0fb7d4c3-a912-4685-bd30-6c51e98a27f4"))
		return
	}

	analysis, err := h.svc.Analyze(c.Request.Context(), dto.ToDomain(), middlewares.Identity(c))
	if err != nil {
		responses.HandleError(c, err)
		return
	}

	c.Set(middlewares.CtxSelectedModel, analysis.SelectedModel)
	c.Set(middlewares.CtxComplexityScore, analysis.ComplexityScore)
	c.JSON(http.StatusOK, analysis)
}

func opName(stream bool) string {
	if stream {
		return "chat-completion-stream"
	}
	return "chat-completion"
}

// streamErrorBody extracts the safe code and message for the in-band
// error frame.
func streamErrorBody(err error) (string, string) {
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		return string(platformErr.Type), platformErr.Message
	}
	return string(platformerrors.ErrorTypeUpstream), "upstream stream failed"
}
