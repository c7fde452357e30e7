package responses

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ChunkDelta is the incremental payload inside one streamed choice.
type ChunkDelta struct {
	Role      string            `json:"role,omitempty"`
	Content   string            `json:"content,omitempty"`
	ToolCalls []json.RawMessage `json:"tool_calls,omitempty"`
}

// ChunkChoice is one choice in a streamed completion chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// CompletionChunk is the OpenAI-compatible streaming frame body.
type CompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// SSEWriter frames completion chunks as server-sent events. Each frame
// is flushed before the next upstream read so the client socket's send
// buffer applies backpressure to the proxy.
type SSEWriter struct {
	c       *gin.Context
	flusher http.Flusher
	id      string
	model   string
	created int64
	started bool
	closed  bool
}

// NewSSEWriter prepares the response for event streaming. It fails when
// the underlying writer cannot flush.
func NewSSEWriter(c *gin.Context, completionID, model string) (*SSEWriter, error) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSEWriter{
		c:       c,
		flusher: flusher,
		id:      completionID,
		model:   model,
		created: time.Now().Unix(),
	}, nil
}

// WriteContent emits one delta-content frame. The first frame carries
// the assistant role marker.
func (w *SSEWriter) WriteContent(content string) error {
	delta := ChunkDelta{Content: content}
	if !w.started {
		delta.Role = "assistant"
		w.started = true
	}
	return w.writeFrame(CompletionChunk{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: w.created,
		Model:   w.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta}},
	})
}

// WriteToolCall relays one tool-call fragment as received upstream.
func (w *SSEWriter) WriteToolCall(rawJSON string) error {
	if rawJSON == "" {
		return nil
	}
	delta := ChunkDelta{ToolCalls: []json.RawMessage{json.RawMessage(rawJSON)}}
	if !w.started {
		delta.Role = "assistant"
		w.started = true
	}
	return w.writeFrame(CompletionChunk{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: w.created,
		Model:   w.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta}},
	})
}

// WriteFinish emits the finish frame carrying the stop reason.
func (w *SSEWriter) WriteFinish(reason string) error {
	if reason == "" {
		reason = "stop"
	}
	return w.writeFrame(CompletionChunk{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: w.created,
		Model:   w.model,
		Choices: []ChunkChoice{{Index: 0, Delta: ChunkDelta{}, FinishReason: &reason}},
	})
}

// WriteError emits a terminal error frame. The stream still ends with
// [DONE] so clients tear down cleanly.
func (w *SSEWriter) WriteError(code, message string) error {
	payload, err := json.Marshal(gin.H{"error": gin.H{"code": code, "message": message}})
	if err != nil {
		return err
	}
	return w.writeRaw(payload)
}

// Close terminates the stream with the [DONE] sentinel. Safe to call
// more than once.
func (w *SSEWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := fmt.Fprint(w.c.Writer, "data: [DONE]\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *SSEWriter) writeFrame(chunk CompletionChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return w.writeRaw(payload)
}

func (w *SSEWriter) writeRaw(payload []byte) error {
	if w.closed {
		return fmt.Errorf("stream already closed")
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
