package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OllamaAdapter speaks the Ollama /api/chat dialect: NDJSON lines with
// a done flag instead of SSE framing.
type OllamaAdapter struct{}

func NewOllamaAdapter() *OllamaAdapter { return &OllamaAdapter{} }

func (a *OllamaAdapter) Name() string         { return "ollama" }
func (a *OllamaAdapter) SupportsVision() bool { return false }
func (a *OllamaAdapter) ProbePath() string    { return "/api/tags" }

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

func (a *OllamaAdapter) Serialize(req *Request) ([]byte, map[string]string, string, error) {
	out := ollamaRequest{
		Model:  req.Model,
		Stream: req.Stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}

	if req.System != "" {
		out.Messages = append(out.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, nil, "", fmt.Errorf("marshal ollama request: %w", err)
	}
	return body, map[string]string{"Content-Type": "application/json"}, "/api/chat", nil
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Error      string `json:"error"`
}

func (a *OllamaAdapter) ParseChunk(line []byte) ([]Chunk, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var event ollamaChunk
	if err := json.Unmarshal(line, &event); err != nil {
		return nil, fmt.Errorf("parse ollama chunk: %w", err)
	}
	if event.Error != "" {
		return []Chunk{{Kind: ChunkError, ErrMessage: event.Error, Terminal: true}}, nil
	}

	var chunks []Chunk
	if event.Message.Content != "" {
		chunks = append(chunks, Chunk{Kind: ChunkDeltaContent, Content: event.Message.Content})
	}
	if event.Done {
		reason := event.DoneReason
		if reason == "" {
			reason = "stop"
		}
		chunks = append(chunks, Chunk{Kind: ChunkFinish, FinishReason: reason, Terminal: true})
	}
	return chunks, nil
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (a *OllamaAdapter) ParseResponse(body []byte) (*Completion, error) {
	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse ollama response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", resp.Error)
	}

	reason := resp.DoneReason
	if reason == "" {
		reason = "stop"
	}
	return &Completion{
		Content:      resp.Message.Content,
		FinishReason: reason,
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}
