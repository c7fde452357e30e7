package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

const anthropicVersion = "2023-06-01"

// Anthropic requires max_tokens; requests without one get this ceiling.
const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter speaks the Anthropic messages dialect: system text
// travels out of band, max_tokens is mandatory, and streaming arrives
// as typed SSE events.
type AnthropicAdapter struct {
	apiKey string
}

func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{apiKey: apiKey}
}

func (a *AnthropicAdapter) Name() string         { return "anthropic" }
func (a *AnthropicAdapter) SupportsVision() bool { return true }
func (a *AnthropicAdapter) ProbePath() string    { return "/v1/models" }

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
	TopP        float32            `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

func (a *AnthropicAdapter) Serialize(req *Request) ([]byte, map[string]string, string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	out := anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}

	for _, m := range req.Messages {
		// Anthropic only accepts user/assistant turns; stray system
		// messages fold into the out-of-band system text.
		if m.Role == "system" {
			if out.System != "" {
				out.System += "\n\n"
			}
			out.System += m.Content
			continue
		}

		msg := anthropicMessage{Role: m.Role}
		if m.Content != "" {
			msg.Content = append(msg.Content, anthropicContent{Type: "text", Text: m.Content})
		}
		for _, img := range m.Images {
			msg.Content = append(msg.Content, anthropicContent{
				Type: "image",
				Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: img.MIME,
					Data:      img.Data,
				},
			})
		}
		if len(msg.Content) == 0 {
			continue
		}
		out.Messages = append(out.Messages, msg)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, nil, "", fmt.Errorf("marshal anthropic request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
		"Content-Type":      "application/json",
	}
	return body, headers, "/v1/messages", nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnthropicAdapter) ParseChunk(line []byte) ([]Chunk, error) {
	payload, ok := ssePayload(line)
	if !ok {
		return nil, nil
	}

	var event anthropicStreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("parse anthropic event: %w", err)
	}

	switch event.Type {
	case "content_block_delta":
		if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
			return []Chunk{{Kind: ChunkDeltaContent, Content: event.Delta.Text}}, nil
		}
		return nil, nil
	case "message_delta":
		if event.Delta.StopReason != "" {
			return []Chunk{{Kind: ChunkFinish, FinishReason: event.Delta.StopReason}}, nil
		}
		return nil, nil
	case "message_stop":
		return []Chunk{{Kind: ChunkFinish, Terminal: true}}, nil
	case "error":
		return []Chunk{{Kind: ChunkError, ErrMessage: event.Error.Message, Terminal: true}}, nil
	case "ping":
		return []Chunk{{Kind: ChunkKeepalive}}, nil
	default:
		// message_start, content_block_start/stop carry no text.
		return nil, nil
	}
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *AnthropicAdapter) ParseResponse(body []byte) (*Completion, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, errors.New("anthropic response has no content blocks")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &Completion{
		Content:      text,
		FinishReason: resp.StopReason,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
