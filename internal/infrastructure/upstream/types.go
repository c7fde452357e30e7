// Package upstream translates normalized chat requests into provider
// wire formats, dispatches them over pooled connections, and relays
// streamed output with circuit breaking and fallback.
package upstream

import "fmt"

// ChunkKind classifies one unit of streamed upstream output.
type ChunkKind string

const (
	ChunkDeltaContent  ChunkKind = "delta-content"
	ChunkDeltaToolCall ChunkKind = "delta-tool-call"
	ChunkFinish        ChunkKind = "finish"
	ChunkError         ChunkKind = "error"
	ChunkKeepalive     ChunkKind = "keepalive"
)

// Chunk is one parsed streaming event. Terminal reports end of stream.
type Chunk struct {
	Kind         ChunkKind
	Content      string
	ToolCallJSON string
	FinishReason string
	ErrMessage   string
	Terminal     bool
}

// Image is one inline image attachment, base64-encoded.
type Image struct {
	MIME string
	Data string
}

// DataURL renders the image as an OpenAI-style data URL.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIME, i.Data)
}

// Message is one chat turn in the normalized outbound request.
type Message struct {
	Role    string
	Content string
	Images  []Image
}

// Request is the provider-neutral outbound request. System carries the
// woven file context separately because some providers take it out of
// band.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	TopP        float32
	Stream      bool
}

// Usage is the token accounting reported by the provider, when any.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a buffered (non-streaming) result.
type Completion struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// ProviderAdapter converts between the neutral Request and one
// provider's wire format. Adapters are stateless and safe for
// concurrent use.
type ProviderAdapter interface {
	// Name identifies the wire dialect.
	Name() string
	// Serialize renders the request body, extra headers, and URL path.
	Serialize(req *Request) (body []byte, headers map[string]string, path string, err error)
	// ParseChunk converts one raw stream line into zero or more chunks.
	// SSE dialects receive the line with its "data:" prefix intact;
	// NDJSON dialects receive the bare JSON line.
	ParseChunk(line []byte) ([]Chunk, error)
	// ParseResponse converts a buffered response body.
	ParseResponse(body []byte) (*Completion, error)
	// SupportsVision reports whether images may be sent inline.
	SupportsVision() bool
	// ProbePath is the cheap reachability endpoint relative to the base URL.
	ProbePath() string
}
